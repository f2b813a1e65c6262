package ui

import "github.com/banshee-data/pulse.monitor/internal/session"

// Status is a snapshot of the controller for the status endpoint. It is safe
// to read from any goroutine.
type Status struct {
	State       string   `json:"state"`
	SelectedRow int      `json:"selected_row"`
	Activity    string   `json:"activity"`
	LastOutcome string   `json:"last_outcome,omitempty"`
	History     []string `json:"history"`
}

// Status returns the latest snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status
	s.History = append([]string(nil), s.History...)
	return s
}

// publishStatus refreshes the snapshot. An empty activity keeps the current
// one.
func (c *Controller) publishStatus(activity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.State = c.state.String()
	c.status.SelectedRow = c.row
	if activity != "" {
		c.status.Activity = activity
	}
	c.status.History = append(c.status.History[:0], c.labels[:]...)
}

func (c *Controller) setOutcome(k session.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.LastOutcome = k.String()
}

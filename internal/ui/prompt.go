package ui

import (
	"context"

	"github.com/banshee-data/pulse.monitor/internal/display"
	"github.com/banshee-data/pulse.monitor/internal/input"
	"github.com/banshee-data/pulse.monitor/internal/monitoring"
	"github.com/banshee-data/pulse.monitor/internal/timeutil"
)

// ButtonPrompt asks the user whether to retry a failed cloud login. A press
// within MessageDelay confirms.
type ButtonPrompt struct {
	Display display.Display
	Input   *input.Monitor
	Clock   timeutil.Clock
}

// ConfirmRetry implements kubios.RetryPrompt.
func (p *ButtonPrompt) ConfirmRetry(ctx context.Context) bool {
	p.Input.Presses.Drain()

	d := p.Display
	d.Fill(display.Off)
	display.AddText(d, "Kubios Failed", 50, 1)
	display.AddText(d, "Press button to try again", 50, 2)
	if err := d.Show(); err != nil {
		monitoring.Logf("display: %v", err)
	}

	p.Clock.Sleep(MessageDelay)
	if ctx.Err() != nil {
		return false
	}
	return p.Input.Pressed()
}

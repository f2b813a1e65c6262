// Package ui is the menu state machine of the device. It owns the main loop:
// it reads knob and button events, draws menus, runs measurement sessions
// and hands their results to the analysis, history and publishing
// collaborators.
package ui

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/pulse.monitor/internal/db"
	"github.com/banshee-data/pulse.monitor/internal/display"
	"github.com/banshee-data/pulse.monitor/internal/hrv"
	"github.com/banshee-data/pulse.monitor/internal/input"
	"github.com/banshee-data/pulse.monitor/internal/monitoring"
	"github.com/banshee-data/pulse.monitor/internal/session"
	"github.com/banshee-data/pulse.monitor/internal/tachogram"
	"github.com/banshee-data/pulse.monitor/internal/timeutil"
	"github.com/banshee-data/pulse.monitor/internal/wlan"
)

// State is the active menu.
type State int

const (
	Main State = iota
	HeartRate
	HRV
	Kubios
	History
)

func (s State) String() string {
	switch s {
	case Main:
		return "main"
	case HeartRate:
		return "heart_rate"
	case HRV:
		return "hrv"
	case Kubios:
		return "kubios"
	case History:
		return "history"
	default:
		return "unknown"
	}
}

// Timings of the transient screens.
const (
	MessageDelay   = 3 * time.Second
	ConnectedDelay = time.Second
	AnimationFrame = 250 * time.Millisecond
	WLANAttempts   = 10
	PollInterval   = 5 * time.Millisecond
)

// HistorySlots is the number of stored analyses the History menu shows.
const HistorySlots = 4

// EmptyLabel marks an unused History row.
const EmptyLabel = "- EMPTY -"

// submenuRow is the only selectable item row of the single-item menus.
const submenuRow = 2

// MinIntervals is the shortest completed collection worth analysing.
const MinIntervals = 29

// Measurer runs measurement sessions.
type Measurer interface {
	Continuous(ctx context.Context) session.Outcome
	FixedCount(ctx context.Context) session.Outcome
}

// Analyzer is the cloud analysis service.
type Analyzer interface {
	Analyze(ctx context.Context, intervals []int) (hrv.Result, error)
}

// HistoryStore keeps the latest cloud analyses, most recent last.
type HistoryStore interface {
	Append(ctx context.Context, r hrv.Result) error
	List(ctx context.Context) ([]hrv.Result, error)
}

// ResultPublisher forwards finished analyses.
type ResultPublisher interface {
	PublishResult(ctx context.Context, r hrv.Result) error
}

// ReportWriter renders plots of a finished collection.
type ReportWriter interface {
	Write(label string, intervals []int, r hrv.Result) (tachogram.Report, error)
}

// SessionLog records every finished session.
type SessionLog interface {
	RecordSession(ctx context.Context, s db.SessionRecord) error
}

// Deps is everything the controller drives. Publisher, Reports and Sessions
// are optional.
type Deps struct {
	Display display.Display
	Input   *input.Monitor
	Session Measurer
	Link    wlan.Link
	Cloud   Analyzer
	History HistoryStore
	Clock   timeutil.Clock

	Publisher ResultPublisher
	Reports   ReportWriter
	Sessions  SessionLog
}

var mainMenu = []string{"HR measure", "Basic HRV", "Kubios HRV", "History"}

// Controller is the menu state machine.
type Controller struct {
	d Deps

	state  State
	row    int
	dirty  bool
	stored []hrv.Result
	labels [HistorySlots]string

	mu     sync.Mutex
	status Status
}

// New creates a controller showing the main menu.
func New(d Deps) *Controller {
	if d.Clock == nil {
		d.Clock = timeutil.RealClock{}
	}
	c := &Controller{d: d, state: Main, dirty: true}
	for i := range c.labels {
		c.labels[i] = EmptyLabel
	}
	c.publishStatus("idle")
	return c
}

// State returns the active menu and cursor row.
func (c *Controller) State() (State, int) { return c.state, c.row }

// Labels returns the History menu rows.
func (c *Controller) Labels() []string { return append([]string(nil), c.labels[:]...) }

// Run loads the history labels and processes events until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.RefreshHistory(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !c.Step(ctx) {
			c.d.Clock.Sleep(PollInterval)
		}
	}
}

// Step redraws the menu if needed and handles every pending knob step and
// button press. It reports whether any event was handled.
func (c *Controller) Step(ctx context.Context) bool {
	if c.dirty {
		c.renderMenu()
		c.dirty = false
	}

	handled := false
	for {
		dir, ok := c.d.Input.NextStep()
		if !ok {
			break
		}
		c.move(dir)
		handled = true
	}
	for c.d.Input.Pressed() {
		c.press(ctx)
		handled = true
		if ctx.Err() != nil {
			break
		}
	}
	if handled {
		c.publishStatus("idle")
	}
	return handled
}

// move shifts the cursor by dir within the rows the active menu offers.
// Single-item menus jump between the back arrow and their item.
func (c *Controller) move(dir int) {
	c.dirty = true
	switch c.state {
	case Main:
		c.row = clamp(c.row+dir, 0, len(mainMenu)-1)
	case History:
		c.row = clamp(c.row+dir, -1, HistorySlots-1)
	default:
		switch {
		case dir > 0:
			c.row = submenuRow
		case dir < 0:
			c.row = -1
		}
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func (c *Controller) goTo(s State, row int) {
	c.state, c.row, c.dirty = s, row, true
}

func (c *Controller) press(ctx context.Context) {
	switch c.state {
	case Main:
		switch c.row {
		case 0:
			c.goTo(HeartRate, submenuRow)
		case 1:
			c.goTo(HRV, submenuRow)
		case 2:
			c.goTo(Kubios, submenuRow)
		case 3:
			c.goTo(History, 0)
		}

	case HeartRate:
		if c.row == submenuRow {
			c.publishStatus("measuring")
			c.record(ctx, "heart_rate", func() session.Outcome { return c.d.Session.Continuous(ctx) })
		}
		c.goTo(Main, 0)

	case HRV:
		switch c.row {
		case -1:
			c.goTo(Main, 1)
		case submenuRow:
			c.runLocalHRV(ctx)
			c.goTo(Main, 0)
		}

	case Kubios:
		switch c.row {
		case -1:
			c.goTo(Main, 2)
		case submenuRow:
			c.runCloudHRV(ctx)
			c.goTo(Main, 0)
		}

	case History:
		switch {
		case c.row < 0:
			c.goTo(Main, 3)
		case c.labels[c.row] != EmptyLabel:
			c.showAnalysis(ctx, c.stored[c.row])
			c.goTo(History, -1)
		}
	}
}

// record runs one session and appends it to the session log.
func (c *Controller) record(ctx context.Context, mode string, run func() session.Outcome) session.Outcome {
	started := c.d.Clock.Now()
	out := run()
	c.setOutcome(out.Kind)
	if c.d.Sessions != nil {
		rec := db.SessionRecord{
			Mode:      mode,
			Outcome:   out.Kind.String(),
			Intervals: len(out.Intervals),
			StartedAt: started,
			EndedAt:   c.d.Clock.Now(),
		}
		if err := c.d.Sessions.RecordSession(context.WithoutCancel(ctx), rec); err != nil {
			monitoring.Logf("Failed to record %s session: %v", mode, err)
		}
	}
	return out
}

// collect runs a fixed-count session and reports whether it produced enough
// intervals. On failure the reason is shown on messageRow.
func (c *Controller) collect(ctx context.Context, mode string, messageRow int) ([]int, bool) {
	c.publishStatus("measuring")
	out := c.record(ctx, mode, func() session.Outcome { return c.d.Session.FixedCount(ctx) })
	if out.Kind == session.Completed && len(out.Intervals) >= MinIntervals {
		return out.Intervals, true
	}
	if ctx.Err() != nil {
		return nil, false
	}
	if out.Kind == session.InterferenceAbort {
		c.message(messageRow, "No pulse found.", "Analysis interrupted.")
	} else {
		c.message(messageRow, "Analysis interrupted.")
	}
	return nil, false
}

func (c *Controller) runLocalHRV(ctx context.Context) {
	intervals, ok := c.collect(ctx, "hrv", 1)
	if !ok {
		return
	}
	r, err := hrv.Analyze(intervals)
	if err != nil {
		monitoring.Logf("Local HRV analysis failed: %v", err)
		c.message(1, "Analysis failed.")
		return
	}
	c.deliver(ctx, "local", intervals, r)
	c.showAnalysis(ctx, r)
}

func (c *Controller) runCloudHRV(ctx context.Context) {
	c.publishStatus("connecting")
	if !c.connectWLAN(ctx) {
		if ctx.Err() == nil {
			c.d.Clock.Sleep(MessageDelay)
		}
		return
	}

	intervals, ok := c.collect(ctx, "kubios", 2)
	if !ok {
		return
	}

	c.publishStatus("analysing")
	c.screen(func(d display.Display) { display.AddText(d, "Connecting.", 50, 2) })
	r, err := c.d.Cloud.Analyze(ctx, intervals)
	if err != nil {
		monitoring.Logf("Cloud analysis failed: %v", err)
		if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			c.message(1, "Kubios Failed")
		}
		return
	}

	if err := c.d.History.Append(ctx, r); err != nil {
		monitoring.Logf("Failed to store analysis: %v", err)
	}
	c.RefreshHistory(ctx)
	c.deliver(ctx, "kubios", intervals, r)

	c.animate()
	c.d.Clock.Sleep(AnimationFrame)
	c.showReadiness(ctx, r)
	c.showAnalysis(ctx, r)
}

// deliver hands a finished analysis to the optional publisher and report
// writer. Failures are logged only.
func (c *Controller) deliver(ctx context.Context, label string, intervals []int, r hrv.Result) {
	if c.d.Publisher != nil {
		if err := c.d.Publisher.PublishResult(ctx, r); err != nil {
			monitoring.Logf("Failed to publish %s result: %v", label, err)
		}
	}
	if c.d.Reports != nil {
		rep, err := c.d.Reports.Write(label, intervals, r)
		if err != nil {
			monitoring.Logf("Failed to write %s report: %v", label, err)
		} else {
			monitoring.Logf("Wrote %s", rep.Tachogram)
		}
	}
}

// connectWLAN makes up to WLANAttempts connection attempts, animating
// between them.
func (c *Controller) connectWLAN(ctx context.Context) bool {
	for attempt := 1; ; attempt++ {
		if err := c.d.Link.Connect(ctx); err == nil {
			c.screen(func(d display.Display) { display.AddText(d, "WLAN connected!", 50, 2) })
			c.d.Clock.Sleep(ConnectedDelay)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.animate()
		if attempt >= WLANAttempts {
			monitoring.Logf("WLAN connection failed after %d attempts", attempt)
			c.screen(func(d display.Display) {
				display.AddText(d, "Connection", 50, 0)
				display.AddText(d, "failed!", 50, 1)
				display.AddText(d, "Returning", 50, 2)
				display.AddText(d, "to main menu", 50, 3)
			})
			return false
		}
	}
}

// waitPress blocks until the button is pressed or ctx is done.
func (c *Controller) waitPress(ctx context.Context) bool {
	for ctx.Err() == nil {
		if c.d.Input.Pressed() {
			return true
		}
		c.d.Clock.Sleep(PollInterval)
	}
	return false
}

// RefreshHistory reloads the stored analyses and the History menu labels.
func (c *Controller) RefreshHistory(ctx context.Context) {
	results, err := c.d.History.List(ctx)
	if err != nil {
		monitoring.Logf("Failed to load history: %v", err)
		return
	}
	if len(results) > HistorySlots {
		results = results[len(results)-HistorySlots:]
	}
	c.stored = results
	for i := range c.labels {
		c.labels[i] = EmptyLabel
		if i < len(results) {
			c.labels[i] = HistoryLabel(results[i])
		}
	}
	c.dirty = true
	c.publishStatus("")
}

// HistoryLabel is the History menu text for r: the analysis date as
// DD.MM.YY.
func HistoryLabel(r hrv.Result) string {
	if r.Cloud == nil || r.Cloud.CreateTimestamp.IsZero() {
		return "local"
	}
	return r.Cloud.CreateTimestamp.Format("02.01.06")
}

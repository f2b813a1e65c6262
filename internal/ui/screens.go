package ui

import (
	"context"
	"fmt"
	"math"

	"github.com/banshee-data/pulse.monitor/internal/display"
	"github.com/banshee-data/pulse.monitor/internal/hrv"
	"github.com/banshee-data/pulse.monitor/internal/monitoring"
)

// StressThreshold is the rounded stress index at which the result screen
// shows the sad face.
const StressThreshold = 12

var (
	hrMenu     = []string{"Calculate HR"}
	hrvMenu    = []string{"Calculate HRV"}
	kubiosMenu = []string{"Kubios HRV"}
)

func (c *Controller) menuItems() []string {
	switch c.state {
	case HeartRate:
		return hrMenu
	case HRV:
		return hrvMenu
	case Kubios:
		return kubiosMenu
	case History:
		return c.labels[:]
	default:
		return mainMenu
	}
}

func (c *Controller) renderMenu() {
	c.screen(func(d display.Display) {
		display.Selector(d, c.row)
		items := c.menuItems()
		switch c.state {
		case Main, History:
			for i, item := range items {
				display.AddText(d, item, 50, i)
			}
		default:
			display.AddText(d, items[0], 50, submenuRow)
		}
		if c.state != Main {
			display.AddText(d, "<-", 2, 0)
		}
	})
}

// screen clears the display, draws with fn and shows the frame.
func (c *Controller) screen(fn func(d display.Display)) {
	d := c.d.Display
	d.Fill(display.Off)
	fn(d)
	if err := d.Show(); err != nil {
		monitoring.Logf("display: %v", err)
	}
}

// message shows lines from row on and holds them for MessageDelay.
func (c *Controller) message(row int, lines ...string) {
	c.screen(func(d display.Display) {
		for i, l := range lines {
			display.AddText(d, l, 50, row+i)
		}
	})
	c.d.Clock.Sleep(MessageDelay)
}

// animate plays one round of the connecting animation.
func (c *Controller) animate() {
	for _, frame := range []string{"Connecting.", "Connecting..", "Connecting..."} {
		c.screen(func(d display.Display) { display.AddText(d, frame, 50, 2) })
		c.d.Clock.Sleep(AnimationFrame)
	}
}

// showAnalysis draws the HRV fields of r and waits for a press. Cloud
// results carry their own timestamp; local ones show the current time.
func (c *Controller) showAnalysis(ctx context.Context, r hrv.Result) {
	c.screen(func(d display.Display) {
		display.AddText(d, "<-", 2, 0)
		display.Selector(d, -1)

		at := c.d.Clock.Now()
		top := 20
		if r.Cloud != nil {
			at = r.Cloud.CreateTimestamp
			top = 16
		}
		d.Text(at.Format("15:04"), 20, 4, display.On)
		d.Text(at.Format("02.01.06"), 64, 4, display.On)

		lines := []string{
			fmt.Sprintf("mean rr: %.1f", r.MeanRRMs),
			fmt.Sprintf("mean hr: %.1f", r.MeanHRBpm),
			fmt.Sprintf("rmssd: %.1f", r.RMSSDMs),
			fmt.Sprintf("sdnn: %.1f", r.SDNNMs),
		}
		if r.Cloud != nil {
			lines = append(lines,
				fmt.Sprintf("pns: %.3f", r.Cloud.PNSIndex),
				fmt.Sprintf("sns: %.3f", r.Cloud.SNSIndex))
		}
		for i, l := range lines {
			d.Text(l, 0, top+i*8, display.On)
		}
	})
	c.publishStatus("result")
	c.waitPress(ctx)
}

// showReadiness draws the recovery and stress summary of a cloud result and
// waits for a press.
func (c *Controller) showReadiness(ctx context.Context, r hrv.Result) {
	if r.Cloud == nil {
		return
	}
	stress := int(math.Round(r.Cloud.StressIndex))
	recovery := int(math.Round(r.Cloud.Readiness))

	c.screen(func(d display.Display) {
		d.Blit(display.Heart, 10, 0)
		d.Text("recovery %", 40, 3, display.On)
		d.Text(fmt.Sprint(recovery), 62, 15, display.On)
		if stress >= StressThreshold {
			d.Blit(display.Crying, 10, 28)
			d.Text("stress index", 42, 34, display.On)
		} else {
			d.Blit(display.Smiley, 10, 28)
			d.Text("stress idx.", 42, 34, display.On)
		}
		d.Text(fmt.Sprint(stress), 62, 44, display.On)
	})
	c.publishStatus("result")
	c.waitPress(ctx)
}

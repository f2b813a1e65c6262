package serialmux

import (
	"github.com/banshee-data/pulse.monitor/internal/input"
	"github.com/banshee-data/pulse.monitor/internal/monitoring"
	"github.com/banshee-data/pulse.monitor/internal/sensor"
)

// Handler receives parsed hub events on the reader goroutine. Implementations
// must not block.
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Event)

func (f HandlerFunc) HandleEvent(ev Event) { f(ev) }

// DeviceHandler routes hub events to the device inputs: samples to the ADC
// latch, edges to the button and encoder filters.
type DeviceHandler struct {
	Latch  *sensor.Latch
	Input  *input.Monitor
	Paired *input.LevelPin
}

func (h *DeviceHandler) HandleEvent(ev Event) {
	switch ev.Kind {
	case EventSample:
		h.Latch.Store(ev.Value)
	case EventButton:
		h.Input.Button.Edge()
	case EventRotary:
		h.Paired.Set(ev.Level)
		h.Input.Rotary.Edge()
	case EventStatus:
		monitoring.Logf("hub: %s", ev.Text)
	}
}

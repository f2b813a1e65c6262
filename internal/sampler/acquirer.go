package sampler

import (
	"sync"
	"time"

	"github.com/banshee-data/pulse.monitor/internal/fifo"
	"github.com/banshee-data/pulse.monitor/internal/sensor"
	"github.com/banshee-data/pulse.monitor/internal/timeutil"
)

// Acquirer reads the ADC on a fixed-rate timer and pushes every reading to
// the raw sample queue. The tick handler never blocks: a reading that does
// not fit is counted by the queue and dropped.
type Acquirer struct {
	adc    sensor.ADC
	queue  *fifo.Queue[uint16]
	clock  timeutil.Clock
	period time.Duration

	mu     sync.Mutex
	ticker timeutil.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewAcquirer creates a stopped acquirer sampling adc at rateHz.
func NewAcquirer(adc sensor.ADC, queue *fifo.Queue[uint16], clock timeutil.Clock, rateHz int) *Acquirer {
	return &Acquirer{
		adc:    adc,
		queue:  queue,
		clock:  clock,
		period: timeutil.PeriodForRate(rateHz),
	}
}

// Queue returns the raw sample queue the acquirer feeds.
func (a *Acquirer) Queue() *fifo.Queue[uint16] { return a.queue }

// Tick performs one acquisition.
func (a *Acquirer) Tick() {
	a.queue.Put(a.adc.Read())
}

// Start arms the sampling timer. Calling Start on a running acquirer is a no-op.
func (a *Acquirer) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ticker != nil {
		return
	}

	ticker := a.clock.NewTicker(a.period)
	done := make(chan struct{})
	a.ticker = ticker
	a.done = done

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-done:
				return
			case <-ticker.C():
				a.Tick()
			}
		}
	}()
}

// Stop disarms the timer and waits for an in-flight tick to finish.
func (a *Acquirer) Stop() {
	a.mu.Lock()
	if a.ticker == nil {
		a.mu.Unlock()
		return
	}
	a.ticker.Stop()
	close(a.done)
	a.ticker = nil
	a.done = nil
	a.mu.Unlock()

	a.wg.Wait()
}

// Active reports whether the sampling timer is armed.
func (a *Acquirer) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ticker != nil
}

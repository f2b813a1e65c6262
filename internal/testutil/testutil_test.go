package testutil

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/pulse.monitor/internal/fifo"
)

func TestAssertStatusCode(t *testing.T) {
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
}

func TestNewTestRequest(t *testing.T) {
	req := NewTestRequest(http.MethodGet, "/api/history")
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/api/history", req.URL.Path)
}

func TestSquarePulse(t *testing.T) {
	wave := SquarePulse(10, 2)
	assert.Len(t, wave, 20)
	assert.Equal(t, uint16(PulseHigh), wave[0])
	assert.Equal(t, uint16(PulseHigh), wave[4])
	assert.Equal(t, uint16(PulseLow), wave[5])
	assert.Equal(t, uint16(PulseHigh), wave[10])
}

func TestRampAndConstant(t *testing.T) {
	assert.Equal(t, []uint16{100, 110, 120}, Ramp(100, 10, 3))
	assert.Equal(t, []uint16{7, 7}, Constant(7, 2))
}

func TestSliceADCAndFeeder(t *testing.T) {
	adc := NewSliceADC([]uint16{1, 2}, []uint16{3})
	presses := fifo.New[int](fifo.ButtonQueueSize)
	var got []uint16
	feed := Feeder(adc, func() { got = append(got, adc.Read()) }, presses)

	for i := 0; i < 4; i++ {
		feed()
	}
	assert.Equal(t, []uint16{1, 2, 3}, got)
	assert.Equal(t, 3, adc.Consumed())
	assert.True(t, adc.Done())
	assert.Equal(t, 1, presses.Len())
	assert.Equal(t, uint16(0), adc.Read())
}

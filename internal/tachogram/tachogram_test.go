package tachogram

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.monitor/internal/fsutil"
	"github.com/banshee-data/pulse.monitor/internal/hrv"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestWriteReport(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	w := NewWriter(mfs, "/var/lib/pulsemon/plots")
	w.now = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }

	intervals := []int{800, 810, 790, 805, 820, 798, 802}
	r, err := hrv.Analyze(intervals)
	require.NoError(t, err)

	rep, err := w.Write("hrv local", intervals, r)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/pulsemon/plots/20250301_093000_hrv_local_tachogram.png", rep.Tachogram)
	assert.Equal(t, "/var/lib/pulsemon/plots/20250301_093000_hrv_local_poincare.png", rep.Poincare)

	for _, path := range []string{rep.Tachogram, rep.Poincare} {
		data, err := mfs.ReadFile(path)
		require.NoError(t, err, path)
		assert.True(t, bytes.HasPrefix(data, pngMagic), "%s is not a PNG", filepath.Base(path))
	}

	files, err := w.List()
	require.NoError(t, err)
	assert.Equal(t, []string{rep.Poincare, rep.Tachogram}, files)
}

func TestWriteNeedsTwoIntervals(t *testing.T) {
	w := NewWriter(fsutil.NewMemoryFileSystem(), "plots")
	_, err := w.Write("x", []int{800}, hrv.Result{})
	assert.Error(t, err)
}

func TestListMissingDir(t *testing.T) {
	w := NewWriter(fsutil.NewMemoryFileSystem(), "nowhere")
	files, err := w.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

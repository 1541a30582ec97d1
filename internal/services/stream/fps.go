package stream

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// FPSWindow estimates frames per second as the arithmetic mean of the
// instantaneous rate over the last N inter-frame intervals
type FPSWindow struct {
	size    int
	samples []float64
	next    int
	last    time.Time
}

func NewFPSWindow(size int) *FPSWindow {
	if size < 1 {
		size = 1
	}
	return &FPSWindow{
		size:    size,
		samples: make([]float64, 0, size),
	}
}

// Observe records a frame at now and returns the current estimate. ok is
// false until a positive interval has been seen.
func (w *FPSWindow) Observe(now time.Time) (fps float64, ok bool) {
	if w.last.IsZero() {
		w.last = now
		return 0, false
	}

	dt := now.Sub(w.last).Seconds()
	if dt <= 0 {
		return w.Value()
	}
	w.last = now

	sample := 1.0 / dt
	if len(w.samples) < w.size {
		w.samples = append(w.samples, sample)
	} else {
		w.samples[w.next] = sample
		w.next = (w.next + 1) % w.size
	}

	return w.Value()
}

// Value returns the current estimate without recording a frame
func (w *FPSWindow) Value() (float64, bool) {
	if len(w.samples) == 0 {
		return 0, false
	}
	return stat.Mean(w.samples, nil), true
}

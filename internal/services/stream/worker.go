// Package stream runs one capture, detect, track and count pipeline per
// camera and aggregates their counters for publishing.
package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"beecount-worker-go/internal/config"
	"beecount-worker-go/internal/models"
	"beecount-worker-go/internal/services/counting"
	"beecount-worker-go/internal/services/detection"
	"beecount-worker-go/internal/services/tracking"
)

// ErrWorkerClosed is returned by Step after Release
var ErrWorkerClosed = errors.New("stream worker closed")

// Capture is an open video source
type Capture interface {
	// Read returns the next frame, owned by the caller
	Read() (models.Frame, error)
	Reinitialize() error
	Release() error
}

// Opener opens a capture for a source locator
type Opener func(url string) (Capture, error)

// WorkerOptions tune a worker beyond its stream descriptor
type WorkerOptions struct {
	FPSWindow int
	Backoff   BackoffPolicy
	Logger    zerolog.Logger
	Clock     func() time.Time
}

// StepResult is what one tick of one worker hands back to the Manager
type StepResult struct {
	HiveID   string
	Delta    models.MetricsDelta
	Frame    bool // a frame was read and processed
	Err      error
	Started  time.Time
	Finished time.Time
}

// Worker owns every per-stream resource: capture handle, detector, tracker,
// crossing state and the fps window. Steps are strictly sequential.
type Worker struct {
	cfg      config.StreamConfig
	roi      image.Rectangle
	open     Opener
	detector detection.Detector
	tracker  *tracking.Tracker
	counter  *counting.Counter
	fps      *FPSWindow
	backoff  BackoffPolicy
	logger   zerolog.Logger
	now      func() time.Time

	stepMu      sync.Mutex
	capture     Capture
	prev        map[int]models.Point
	attempts    int
	nextAttempt time.Time

	state        atomic.Value // models.WorkerState
	activeTracks atomic.Int64
	closed       atomic.Bool
	releaseOnce  sync.Once
	releaseErr   error
}

// NewWorker builds a worker for one stream. The capture is opened lazily on
// the first Step.
func NewWorker(cfg config.StreamConfig, open Opener, detector detection.Detector, opts WorkerOptions) (*Worker, error) {
	counter, err := counting.NewCounter(counting.Line{
		Axis:     counting.Axis(cfg.Line.Axis),
		Position: cfg.Line.Pos,
		Margin:   cfg.Line.Margin,
	}, cfg.Direction.UpIsOut)
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", cfg.HiveID, err)
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	w := &Worker{
		cfg:      cfg,
		roi:      cfg.ROIRect(),
		open:     open,
		detector: detector,
		tracker: tracking.NewTracker(tracking.TrackerConfig{
			MaxDisappeared: cfg.MaxDisappeared,
			MaxDistance:    cfg.MaxDist,
		}, tracking.WithClock(now)),
		counter: counter,
		fps:     NewFPSWindow(opts.FPSWindow),
		backoff: opts.Backoff,
		logger:  opts.Logger,
		now:     now,
		prev:    make(map[int]models.Point),
	}
	w.setState(models.WorkerStateUninitialized)
	return w, nil
}

func (w *Worker) HiveID() string { return w.cfg.HiveID }

func (w *Worker) Config() config.StreamConfig { return w.cfg }

// Algo is the detector backend tag
func (w *Worker) Algo() string { return w.detector.Algo() }

func (w *Worker) State() models.WorkerState {
	return w.state.Load().(models.WorkerState)
}

func (w *Worker) setState(s models.WorkerState) {
	w.state.Store(s)
}

// ActiveTracks returns the track count after the last processed frame
func (w *Worker) ActiveTracks() int {
	return int(w.activeTracks.Load())
}

// Step runs one tick: read a frame, detect, track, count. Capture and
// detector failures are absorbed here and never fail the tick.
func (w *Worker) Step(ctx context.Context) (res StepResult) {
	w.stepMu.Lock()
	defer w.stepMu.Unlock()

	res = StepResult{HiveID: w.cfg.HiveID, Started: w.now()}
	defer func() { res.Finished = w.now() }()

	if w.closed.Load() {
		res.Err = ErrWorkerClosed
		return res
	}

	if w.capture == nil || w.State() == models.WorkerStateReinitializing {
		if err := w.ensureCapture(res.Started); err != nil {
			res.Err = err
			return res
		}
	}

	w.setState(models.WorkerStateCapturing)
	frame, err := w.capture.Read()
	if err != nil {
		w.logger.Warn().Err(err).Msg("Frame read failed, reinitializing capture")
		w.setState(models.WorkerStateReinitializing)
		// The first attempt is immediate, later ones back off
		if rerr := w.ensureCapture(w.now()); rerr != nil {
			err = errors.Join(err, rerr)
		}
		res.Err = err
		return res
	}
	defer frame.Close()

	res.Delta, res.Err = w.process(ctx, frame)
	res.Frame = true
	w.setState(models.WorkerStateCapturing)
	return res
}

// ensureCapture opens or reopens the capture if an attempt is due
func (w *Worker) ensureCapture(now time.Time) error {
	if now.Before(w.nextAttempt) {
		w.setState(models.WorkerStateReinitializing)
		return fmt.Errorf("capture for %s waiting %s before next attempt", w.cfg.HiveID, w.nextAttempt.Sub(now).Round(time.Millisecond))
	}

	var err error
	if w.capture == nil {
		var c Capture
		c, err = w.open(w.cfg.URL)
		if err == nil {
			w.capture = c
		}
	} else {
		err = w.capture.Reinitialize()
	}

	if err != nil {
		w.attempts++
		delay := w.backoff.Delay(w.attempts)
		w.nextAttempt = now.Add(delay)
		w.setState(models.WorkerStateReinitializing)
		w.logger.Warn().
			Err(err).
			Int("attempt", w.attempts).
			Dur("retry_in", delay).
			Msg("Capture unavailable")
		return fmt.Errorf("capture for %s unavailable: %w", w.cfg.HiveID, err)
	}

	if w.attempts > 0 {
		w.logger.Info().Int("attempts", w.attempts).Msg("Capture recovered")
	}
	w.attempts = 0
	w.nextAttempt = time.Time{}
	w.setState(models.WorkerStateCapturing)
	return nil
}

// process runs detection, tracking and counting on one frame. The returned
// error reports a crop or detector failure; the tick still counts as zero
// detections so existing tracks age out.
func (w *Worker) process(ctx context.Context, frame models.Frame) (models.MetricsDelta, error) {
	var (
		delta      models.MetricsDelta
		detections []models.Detection
		detectErr  error
	)

	roi, err := frame.Crop(w.roi)
	if err != nil {
		detectErr = fmt.Errorf("crop roi: %w", err)
	} else {
		w.setState(models.WorkerStateDetecting)
		detections, detectErr = detection.SafeDetect(ctx, w.detector, roi, w.logger)
		roi.Close()
	}

	w.setState(models.WorkerStateTracking)
	tracks := w.tracker.Update(models.Centroids(detections))
	for _, id := range w.tracker.Removed() {
		delete(w.prev, id)
	}
	w.activeTracks.Store(int64(len(tracks)))

	w.setState(models.WorkerStateCounting)
	active := make(map[int]struct{}, len(tracks))
	for _, t := range tracks {
		active[t.ID] = struct{}{}
		if prev, ok := w.prev[t.ID]; ok {
			switch w.counter.Evaluate(prev, t.Position) {
			case counting.EventIn:
				delta.In++
			case counting.EventOut:
				delta.Out++
			}
		}
		w.prev[t.ID] = t.Position
	}
	for id := range w.prev {
		if _, ok := active[id]; !ok {
			delete(w.prev, id)
		}
	}

	delta.FPS, delta.HasFPS = w.fps.Observe(w.now())

	if delta.In > 0 || delta.Out > 0 {
		w.logger.Debug().
			Int("in", delta.In).
			Int("out", delta.Out).
			Int("tracks", len(tracks)).
			Msg("Crossings counted")
	}

	return delta, detectErr
}

// Release frees the capture and detector. Only the first call has effect.
// It must not run concurrently with a Step that may still be using them;
// the Manager guarantees that.
func (w *Worker) Release() error {
	w.releaseOnce.Do(func() {
		w.stepMu.Lock()
		defer w.stepMu.Unlock()

		w.closed.Store(true)
		w.setState(models.WorkerStateClosed)

		var errs []error
		if w.capture != nil {
			if err := w.capture.Release(); err != nil {
				errs = append(errs, fmt.Errorf("release capture: %w", err))
			}
		}
		if err := w.detector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close detector: %w", err))
		}
		w.releaseErr = errors.Join(errs...)

		w.logger.Info().Msg("Stream worker released")
	})
	return w.releaseErr
}

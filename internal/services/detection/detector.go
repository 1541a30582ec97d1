// Package detection defines the detector contract shared by every backend.
package detection

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"beecount-worker-go/internal/models"
)

var (
	// ErrUnsupportedFrame is returned when a backend receives a frame type it cannot read
	ErrUnsupportedFrame = errors.New("unsupported frame type")
	// ErrDetectorClosed is returned by Detect after Close
	ErrDetectorClosed = errors.New("detector closed")
)

// Detector finds bees in a region-of-interest frame
type Detector interface {
	Detect(ctx context.Context, frame models.Frame) ([]models.Detection, error)
	// Algo is the backend tag reported in telemetry
	Algo() string
	Close() error
}

// AreaFilter keeps detections whose area falls within [Min, Max].
// A zero Max disables the upper bound.
type AreaFilter struct {
	Min float64
	Max float64
}

// Allows reports whether an area passes the filter
func (f AreaFilter) Allows(area float64) bool {
	if area < f.Min {
		return false
	}
	if f.Max > 0 && area > f.Max {
		return false
	}
	return true
}

// Apply filters detections in place and returns the kept prefix.
// Detections without an area are kept.
func (f AreaFilter) Apply(detections []models.Detection) []models.Detection {
	kept := detections[:0]
	for _, d := range detections {
		if d.Area == 0 || f.Allows(d.Area) {
			kept = append(kept, d)
		}
	}
	return kept
}

// SafeDetect calls the detector and never lets a failure escape: errors and
// panics are logged and reported as an empty detection set plus the error.
func SafeDetect(ctx context.Context, d Detector, frame models.Frame, logger zerolog.Logger) (detections []models.Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("algo", d.Algo()).Msg("Detector panicked")
			detections = nil
			err = fmt.Errorf("detector %s panicked: %v", d.Algo(), r)
		}
	}()

	detections, err = d.Detect(ctx, frame)
	if err != nil {
		logger.Warn().Err(err).Str("algo", d.Algo()).Msg("Detection failed, treating as zero detections")
		return nil, err
	}
	return detections, nil
}

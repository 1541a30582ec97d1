// Package opencv is the classical bee detector: background subtraction
// followed by contour extraction.
package opencv

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"beecount-worker-go/internal/config"
	"beecount-worker-go/internal/models"
	"beecount-worker-go/internal/services/detection"
)

const (
	DefaultHistory      = 500
	DefaultVarThreshold = 16
	// Foreground values below this are treated as background. MOG2 marks
	// shadows with 127, which therefore survive.
	maskFloor = 127
)

type matFrame interface {
	Mat() gocv.Mat
}

// Detector applies MOG2 background subtraction to a grayscale, blurred ROI
// and reports the bounding-box centre of every contour inside the area window.
// The subtractor is stateful, so one Detector serves exactly one stream.
type Detector struct {
	mu         sync.Mutex
	subtractor gocv.BackgroundSubtractorMOG2
	filter     detection.AreaFilter
	gray       gocv.Mat
	blurred    gocv.Mat
	mask       gocv.Mat
	closed     bool
}

// New creates a detector tuned by the stream's area thresholds
func New(stream config.StreamConfig) *Detector {
	return &Detector{
		subtractor: gocv.NewBackgroundSubtractorMOG2WithParams(DefaultHistory, DefaultVarThreshold, true),
		filter:     detection.AreaFilter{Min: stream.MinArea, Max: stream.MaxArea},
		gray:       gocv.NewMat(),
		blurred:    gocv.NewMat(),
		mask:       gocv.NewMat(),
	}
}

func (d *Detector) Algo() string {
	return config.AlgoOpenCV
}

func (d *Detector) Detect(ctx context.Context, frame models.Frame) ([]models.Detection, error) {
	mf, ok := frame.(matFrame)
	if !ok {
		return nil, fmt.Errorf("%w: %T", detection.ErrUnsupportedFrame, frame)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, detection.ErrDetectorClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := mf.Mat()
	if src.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	if src.Channels() == 1 {
		src.CopyTo(&d.gray)
	} else {
		gocv.CvtColor(src, &d.gray, gocv.ColorBGRToGray)
	}
	gocv.GaussianBlur(d.gray, &d.blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	d.subtractor.Apply(d.blurred, &d.mask)
	gocv.Threshold(d.mask, &d.mask, maskFloor-1, 255, gocv.ThresholdToZero)

	contours := gocv.FindContours(d.mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	detections := make([]models.Detection, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if !d.filter.Allows(area) {
			continue
		}

		centroid, ok := contourCentroid(contour)
		if !ok {
			continue
		}

		rect := gocv.BoundingRect(contour)
		detections = append(detections, models.Detection{
			Centroid: centroid,
			Box:      rect,
			Area:     area,
			Score:    1,
		})
	}

	return detections, nil
}

// contourCentroid is the centre of mass from the contour's spatial moments.
// Degenerate contours with zero area have none.
func contourCentroid(contour gocv.PointVector) (models.Point, bool) {
	mat := gocv.NewMatFromPointVector(contour, true)
	defer mat.Close()

	m := gocv.Moments(mat, false)
	if m["m00"] == 0 {
		return models.Point{}, false
	}
	return models.Pt(m["m10"]/m["m00"], m["m01"]/m["m00"]), true
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	d.subtractor.Close()
	d.gray.Close()
	d.blurred.Close()
	d.mask.Close()
	return nil
}

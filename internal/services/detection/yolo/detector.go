// Package yolo runs a YOLO ONNX model through the OpenCV DNN module.
package yolo

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"beecount-worker-go/internal/config"
	"beecount-worker-go/internal/models"
	"beecount-worker-go/internal/services/detection"
)

// InputSize is the square network input edge in pixels
const InputSize = 640

type matFrame interface {
	Mat() gocv.Mat
}

// Detector wraps a YOLOv8-style network whose output is
// [1, 4+classes, anchors]. Any class counts as a bee.
type Detector struct {
	mu         sync.Mutex
	net        gocv.Net
	filter     detection.AreaFilter
	confidence float32
	nms        float32
	closed     bool
}

// New loads the model referenced by the stream config
func New(stream config.StreamConfig) (*Detector, error) {
	if _, err := os.Stat(stream.ModelPath); err != nil {
		return nil, fmt.Errorf("yolo model %s: %w", stream.ModelPath, err)
	}

	net := gocv.ReadNetFromONNX(stream.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO network from %s", stream.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	log.Info().
		Str("hive_id", stream.HiveID).
		Str("model", stream.ModelPath).
		Float64("confidence", stream.Confidence).
		Float64("nms_threshold", stream.NMSThreshold).
		Msg("Loaded YOLO model")

	return &Detector{
		net:        net,
		filter:     detection.AreaFilter{Min: stream.MinArea, Max: stream.MaxArea},
		confidence: float32(stream.Confidence),
		nms:        float32(stream.NMSThreshold),
	}, nil
}

func (d *Detector) Algo() string {
	return config.AlgoYOLO
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

	blob := gocv.BlobFromImage(src, 1.0/255.0, image.Pt(InputSize, InputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	rows, err := predictions(output)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scaleX := float32(src.Cols()) / InputSize
	scaleY := float32(src.Rows()) / InputSize

	var boxes []image.Rectangle
	var scores []float32
	for i := 0; i < rows.Rows(); i++ {
		classScores := rows.Region(image.Rect(4, i, rows.Cols(), i+1))
		_, maxVal, _, _ := gocv.MinMaxLoc(classScores)
		classScores.Close()

		if maxVal < d.confidence {
			continue
		}

		cx := rows.GetFloatAt(i, 0) * scaleX
		cy := rows.GetFloatAt(i, 1) * scaleY
		w := rows.GetFloatAt(i, 2) * scaleX
		h := rows.GetFloatAt(i, 3) * scaleY

		left := int(cx - w/2)
		top := int(cy - h/2)
		boxes = append(boxes, image.Rect(left, top, left+int(w), top+int(h)))
		scores = append(scores, maxVal)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, scores, d.confidence, d.nms)

	detections := make([]models.Detection, 0, len(indices))
	for _, idx := range indices {
		box := boxes[idx]
		area := float64(box.Dx() * box.Dy())
		if !d.filter.Allows(area) {
			continue
		}
		detections = append(detections, models.Detection{
			Centroid: models.BoxCenter(box),
			Box:      box,
			Area:     area,
			Score:    scores[idx],
		})
	}

	return detections, nil
}

// predictions reshapes the raw [1, attrs, anchors] output into one row per anchor
func predictions(output gocv.Mat) (gocv.Mat, error) {
	dims := output.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return gocv.Mat{}, fmt.Errorf("unexpected YOLO output shape %v", dims)
	}

	attrs := output.Reshape(1, dims[1])
	defer attrs.Close()

	rows := gocv.NewMat()
	gocv.Transpose(attrs, &rows)
	return rows, nil
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}

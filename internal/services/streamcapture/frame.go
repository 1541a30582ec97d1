package streamcapture

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"beecount-worker-go/internal/models"
)

// MatFrame is a models.Frame backed by an OpenCV matrix
type MatFrame struct {
	mat gocv.Mat
}

// NewMatFrame takes ownership of mat
func NewMatFrame(mat gocv.Mat) *MatFrame {
	return &MatFrame{mat: mat}
}

// Mat exposes the underlying matrix to OpenCV-based detectors
func (f *MatFrame) Mat() gocv.Mat {
	return f.mat
}

func (f *MatFrame) Size() image.Point {
	return image.Pt(f.mat.Cols(), f.mat.Rows())
}

// Crop clamps roi to the frame bounds. An empty roi returns a view of the
// whole frame.
func (f *MatFrame) Crop(roi image.Rectangle) (models.Frame, error) {
	bounds := image.Rect(0, 0, f.mat.Cols(), f.mat.Rows())
	if roi.Empty() {
		roi = bounds
	}

	clipped := roi.Intersect(bounds)
	if clipped.Empty() {
		return nil, fmt.Errorf("roi %v lies outside frame %v", roi, bounds)
	}

	return &MatFrame{mat: f.mat.Region(clipped)}, nil
}

func (f *MatFrame) EncodeJPEG(quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, f.mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close
	return append([]byte(nil), buf.GetBytes()...), nil
}

func (f *MatFrame) Close() error {
	return f.mat.Close()
}

// DecodeJPEG decodes an encoded image into a frame owned by the caller
func DecodeJPEG(data []byte) (models.Frame, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to decode image: %w", ErrFrameUnavailable)
	}
	return NewMatFrame(mat), nil
}

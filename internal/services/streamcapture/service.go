// Package streamcapture opens camera feeds with OpenCV and hands out frames.
package streamcapture

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"beecount-worker-go/internal/config"
	"beecount-worker-go/internal/models"
)

var (
	// ErrCaptureClosed is returned by Read after Release
	ErrCaptureClosed = errors.New("capture released")
	// ErrFrameUnavailable is returned when the feed yields no frame
	ErrFrameUnavailable = errors.New("frame unavailable")
)

// Service opens video captures configured from the process config
type Service struct {
	cfg *config.Config
}

// NewService creates a new stream capture service
func NewService(cfg *config.Config) *Service {
	return &Service{
		cfg: cfg,
	}
}

// VideoCapture is one open camera feed
type VideoCapture struct {
	mu     sync.Mutex
	url    string
	width  int
	height int
	cap    *gocv.VideoCapture
	closed bool
}

// Open connects to url using the FFmpeg backend with low-latency options
func (s *Service) Open(url string) (*VideoCapture, error) {
	log.Info().
		Str("url", url).
		Msg("Opening OpenCV VideoCapture with optimized FFmpeg settings")

	cap, err := openCapture(url, streamingOptions, s.cfg.OutputWidth, s.cfg.OutputHeight)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("url", url).
		Float64("actual_fps", cap.Get(gocv.VideoCaptureFPS)).
		Float64("actual_width", cap.Get(gocv.VideoCaptureFrameWidth)).
		Float64("actual_height", cap.Get(gocv.VideoCaptureFrameHeight)).
		Msg("VideoCapture opened successfully with actual properties")

	return &VideoCapture{
		url:    url,
		width:  s.cfg.OutputWidth,
		height: s.cfg.OutputHeight,
		cap:    cap,
	}, nil
}

func openCapture(url string, options map[string]string, width, height int) (*gocv.VideoCapture, error) {
	openMu.Lock()
	defer openMu.Unlock()

	applyFFmpegOptions(options)

	cap, err := gocv.OpenVideoCaptureWithAPI(url, gocv.VideoCaptureFFmpeg)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream %s: %w", url, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("video capture is not opened for %s", url)
	}

	configureVideoCaptureProperties(cap, width, height)
	return cap, nil
}

// configureVideoCaptureProperties sets OpenCV VideoCapture properties for optimal streaming
func configureVideoCaptureProperties(cap *gocv.VideoCapture, width, height int) {
	if width > 0 && height > 0 {
		cap.Set(gocv.VideoCaptureFrameWidth, float64(width))
		cap.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}

	// Minimal buffer so every read returns the freshest frame
	cap.Set(gocv.VideoCaptureBufferSize, 1)
}

// Read grabs the next frame. The caller owns the returned frame.
func (v *VideoCapture) Read() (models.Frame, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, ErrCaptureClosed
	}
	if v.cap == nil || !v.cap.IsOpened() {
		return nil, fmt.Errorf("%w: capture not open", ErrFrameUnavailable)
	}

	img := gocv.NewMat()
	if ok := v.cap.Read(&img); !ok || img.Empty() {
		img.Close()
		return nil, fmt.Errorf("%w: read failed for %s", ErrFrameUnavailable, v.url)
	}

	if v.width > 0 && v.height > 0 && (img.Cols() != v.width || img.Rows() != v.height) {
		resized := gocv.NewMat()
		gocv.Resize(img, &resized, image.Pt(v.width, v.height), 0, 0, gocv.InterpolationLinear)
		img.Close()
		img = resized
	}

	return NewMatFrame(img), nil
}

// Reinitialize closes the feed and reopens it with recovery FFmpeg options,
// confirming the new handle with a test read
func (v *VideoCapture) Reinitialize() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrCaptureClosed
	}

	log.Info().
		Str("url", v.url).
		Msg("Resetting VideoCapture")

	if v.cap != nil {
		v.cap.Close()
		v.cap = nil
	}

	newCap, err := openCapture(v.url, recoveryOptions, v.width, v.height)
	if err != nil {
		return err
	}

	testImg := gocv.NewMat()
	defer testImg.Close()

	testSuccess := false
	for i := 0; i < 3; i++ {
		if newCap.Read(&testImg) && !testImg.Empty() {
			testSuccess = true
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if !testSuccess {
		newCap.Close()
		return fmt.Errorf("reset VideoCapture failed test reads for %s", v.url)
	}

	v.cap = newCap
	log.Info().
		Str("url", v.url).
		Msg("VideoCapture reset successful")

	return nil
}

// Release closes the feed. Safe to call more than once.
func (v *VideoCapture) Release() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true

	if v.cap != nil {
		err := v.cap.Close()
		v.cap = nil
		return err
	}
	return nil
}

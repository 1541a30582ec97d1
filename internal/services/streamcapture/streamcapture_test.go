package streamcapture

import (
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestFFmpegOptionString(t *testing.T) {
	t.Parallel()

	got := ffmpegOptionString(map[string]string{
		"rtsp_transport": "tcp",
		"fflags":         "nobuffer",
		"buffer_size":    "1024",
	})
	assert.Equal(t, "buffer_size;1024|fflags;nobuffer|rtsp_transport;tcp", got)

	// Stable across calls
	assert.Equal(t, ffmpegOptionString(streamingOptions), ffmpegOptionString(streamingOptions))
	assert.True(t, strings.Contains(ffmpegOptionString(recoveryOptions), "rtsp_transport;tcp"))
}

func TestMatFrameCrop(t *testing.T) {
	t.Parallel()

	frame := NewMatFrame(gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3))
	defer frame.Close()
	assert.Equal(t, image.Pt(64, 48), frame.Size())

	t.Run("inside bounds", func(t *testing.T) {
		roi, err := frame.Crop(image.Rect(10, 5, 30, 25))
		require.NoError(t, err)
		defer roi.Close()
		assert.Equal(t, image.Pt(20, 20), roi.Size())
	})

	t.Run("clamped to bounds", func(t *testing.T) {
		roi, err := frame.Crop(image.Rect(50, 40, 100, 100))
		require.NoError(t, err)
		defer roi.Close()
		assert.Equal(t, image.Pt(14, 8), roi.Size())
	})

	t.Run("empty roi is the whole frame", func(t *testing.T) {
		roi, err := frame.Crop(image.Rectangle{})
		require.NoError(t, err)
		defer roi.Close()
		assert.Equal(t, image.Pt(64, 48), roi.Size())
	})

	t.Run("outside bounds", func(t *testing.T) {
		_, err := frame.Crop(image.Rect(100, 100, 120, 120))
		assert.Error(t, err)
	})
}

func TestMatFrameEncodeJPEG(t *testing.T) {
	t.Parallel()

	frame := NewMatFrame(gocv.NewMatWithSize(16, 16, gocv.MatTypeCV8UC3))
	defer frame.Close()

	data, err := frame.EncodeJPEG(90)
	require.NoError(t, err)
	require.Greater(t, len(data), 2)
	assert.Equal(t, []byte{0xff, 0xd8}, data[:2])
}

func TestReleasedCaptureRefusesReads(t *testing.T) {
	t.Parallel()

	v := &VideoCapture{url: "rtsp://example/stream"}
	require.NoError(t, v.Release())
	require.NoError(t, v.Release())

	_, err := v.Read()
	assert.ErrorIs(t, err, ErrCaptureClosed)
	assert.ErrorIs(t, v.Reinitialize(), ErrCaptureClosed)
}

func TestDecodeJPEG(t *testing.T) {
	t.Parallel()

	src := NewMatFrame(gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3))
	defer src.Close()

	data, err := src.EncodeJPEG(90)
	require.NoError(t, err)

	frame, err := DecodeJPEG(data)
	require.NoError(t, err)
	defer frame.Close()
	assert.Equal(t, image.Pt(64, 48), frame.Size())

	_, err = DecodeJPEG([]byte("not an image"))
	assert.Error(t, err)
}

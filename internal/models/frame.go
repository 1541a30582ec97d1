package models

import "image"

// Frame is one decoded video frame handed from capture to detection.
// Frames own native memory and must be closed by whoever obtained them.
type Frame interface {
	Size() image.Point
	// Crop returns a view of the frame restricted to roi. The view shares
	// memory with its parent and must be closed before the parent.
	Crop(roi image.Rectangle) (Frame, error)
	Close() error
}

// JPEGEncoder is implemented by frames that can be shipped to a remote detector
type JPEGEncoder interface {
	EncodeJPEG(quality int) ([]byte, error)
}

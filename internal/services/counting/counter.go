// Package counting turns track motion into directional line-crossing events.
package counting

import (
	"fmt"

	"beecount-worker-go/internal/models"
)

// Axis selects which coordinate the counting line is measured on
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
)

// Event is the outcome of evaluating one track movement
type Event int

const (
	EventNone Event = iota
	EventIn
	EventOut
)

func (e Event) String() string {
	switch e {
	case EventIn:
		return "in"
	case EventOut:
		return "out"
	default:
		return "none"
	}
}

// Line is a counting line with a hysteresis band of Margin on each side
type Line struct {
	Axis     Axis
	Position float64
	Margin   float64
}

func (l Line) coord(p models.Point) float64 {
	if l.Axis == AxisX {
		return p.X
	}
	return p.Y
}

// Counter evaluates crossings for every track of one stream. It holds no
// per-track state: the caller supplies each track's previous position.
type Counter struct {
	line    Line
	upIsOut bool
}

// NewCounter creates a counter. With upIsOut set, motion towards increasing
// coordinates counts as out.
func NewCounter(line Line, upIsOut bool) (*Counter, error) {
	if line.Axis != AxisX && line.Axis != AxisY {
		return nil, fmt.Errorf("invalid line axis %q", line.Axis)
	}
	if line.Margin < 0 {
		return nil, fmt.Errorf("line margin must be >= 0, got %v", line.Margin)
	}
	return &Counter{line: line, upIsOut: upIsOut}, nil
}

// Evaluate compares a track's previous and current positions. An event fires
// only when prev lay strictly outside one guard band and curr lies at or beyond
// the other.
func (c *Counter) Evaluate(prev, curr models.Point) Event {
	p, q := c.line.coord(prev), c.line.coord(curr)
	m, pos := c.line.Margin, c.line.Position

	var rising bool
	switch {
	case p < pos-m && q >= pos+m:
		rising = true
	case p > pos+m && q <= pos-m:
		rising = false
	default:
		return EventNone
	}

	if rising == c.upIsOut {
		return EventOut
	}
	return EventIn
}

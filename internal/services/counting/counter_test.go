package counting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beecount-worker-go/internal/models"
)

func mustCounter(t *testing.T, line Line, upIsOut bool) *Counter {
	t.Helper()
	c, err := NewCounter(line, upIsOut)
	require.NoError(t, err)
	return c
}

func TestCounter_YAxisCrossings(t *testing.T) {
	t.Parallel()

	line := Line{Axis: AxisY, Position: 100, Margin: 2}

	tests := []struct {
		name    string
		prevY   float64
		currY   float64
		upIsOut bool
		want    Event
	}{
		{"rising counts out", 95, 105, true, EventOut},
		{"falling counts in", 105, 95, true, EventIn},
		{"approach without crossing", 90, 95, true, EventNone},
		{"rising counts in when inverted", 95, 105, false, EventIn},
		{"falling counts out when inverted", 105, 95, false, EventOut},
		{"lands inside band", 95, 101, true, EventNone},
		{"starts inside band", 99, 110, true, EventNone},
		{"lands exactly on upper band", 97, 102, true, EventOut},
		{"starts exactly on lower band", 98, 110, true, EventNone},
		{"lands exactly on lower band", 110, 98, true, EventIn},
		{"starts exactly on upper band", 102, 90, true, EventNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := mustCounter(t, line, tt.upIsOut)
			got := c.Evaluate(models.Pt(0, tt.prevY), models.Pt(0, tt.currY))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCounter_XAxisIgnoresY(t *testing.T) {
	t.Parallel()

	c := mustCounter(t, Line{Axis: AxisX, Position: 50, Margin: 2}, true)

	assert.Equal(t, EventNone, c.Evaluate(models.Pt(10, 0), models.Pt(10, 500)))
	assert.Equal(t, EventOut, c.Evaluate(models.Pt(40, 7), models.Pt(60, 7)))
	assert.Equal(t, EventIn, c.Evaluate(models.Pt(60, 7), models.Pt(40, 7)))
}

func TestCounter_OscillationInsideBandIsSilent(t *testing.T) {
	t.Parallel()

	c := mustCounter(t, Line{Axis: AxisY, Position: 100, Margin: 2}, true)
	path := []float64{95, 99, 101, 99, 101, 100, 99, 101}

	events := 0
	for i := 1; i < len(path); i++ {
		if c.Evaluate(models.Pt(0, path[i-1]), models.Pt(0, path[i])) != EventNone {
			events++
		}
	}
	assert.Zero(t, events)
}

func TestCounter_RoundTripCountsBothWays(t *testing.T) {
	t.Parallel()

	c := mustCounter(t, Line{Axis: AxisY, Position: 100, Margin: 2}, true)

	assert.Equal(t, EventOut, c.Evaluate(models.Pt(0, 95), models.Pt(0, 105)))
	assert.Equal(t, EventIn, c.Evaluate(models.Pt(0, 105), models.Pt(0, 95)))
	assert.Equal(t, EventOut, c.Evaluate(models.Pt(0, 95), models.Pt(0, 105)))
}

func TestCounter_ReplayedMovementFiresAgain(t *testing.T) {
	t.Parallel()

	c := mustCounter(t, Line{Axis: AxisY, Position: 100, Margin: 2}, true)

	// No state is kept between calls
	assert.Equal(t, EventOut, c.Evaluate(models.Pt(0, 95), models.Pt(0, 105)))
	assert.Equal(t, EventOut, c.Evaluate(models.Pt(0, 95), models.Pt(0, 105)))
}

func TestCounter_ZeroMarginStillNeedsStrictCrossing(t *testing.T) {
	t.Parallel()

	c := mustCounter(t, Line{Axis: AxisY, Position: 100}, true)

	assert.Equal(t, EventNone, c.Evaluate(models.Pt(0, 100), models.Pt(0, 101)))
	assert.Equal(t, EventOut, c.Evaluate(models.Pt(0, 99.5), models.Pt(0, 100)))
}

func TestNewCounter_RejectsBadLine(t *testing.T) {
	t.Parallel()

	_, err := NewCounter(Line{Axis: "z"}, true)
	assert.Error(t, err)

	_, err = NewCounter(Line{Axis: AxisY, Margin: -1}, true)
	assert.Error(t, err)
}

func TestEventString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "in", EventIn.String())
	assert.Equal(t, "out", EventOut.String())
	assert.Equal(t, "none", EventNone.String())
}

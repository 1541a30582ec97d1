package system

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSamplerPercent(t *testing.T) {
	t.Parallel()

	s := &Sampler{percent: func() ([]float64, error) { return []float64{37.5}, nil }}
	assert.Equal(t, 37.5, s.Percent())

	s.percent = func() ([]float64, error) { return nil, errors.New("no /proc") }
	assert.Zero(t, s.Percent())

	s.percent = func() ([]float64, error) { return []float64{}, nil }
	assert.Zero(t, s.Percent())
}

func TestNewSamplerReadsHost(t *testing.T) {
	t.Parallel()

	s := NewSampler()
	v := s.Percent()
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 100.0)

	stats := s.Process()
	assert.GreaterOrEqual(t, stats.MemoryPercent, 0.0)
}

func TestProcessWithoutHandle(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ProcessStats{}, (&Sampler{}).Process())
}

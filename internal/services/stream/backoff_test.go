package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffPolicy_Delay(t *testing.T) {
	t.Parallel()

	p := BackoffPolicy{Min: time.Second, Max: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Second},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 4, want: 8 * time.Second},
		{attempt: 6, want: 30 * time.Second},
		{attempt: 100, want: 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}

	raised := BackoffPolicy{Min: 5 * time.Second, Max: 30 * time.Second}
	assert.Equal(t, 5*time.Second, raised.Delay(1))
}

func TestBackoffPolicy_JitterStaysInBounds(t *testing.T) {
	t.Parallel()

	p := BackoffPolicy{Min: time.Second, Max: 30 * time.Second, JitterPct: 20}
	for i := 0; i < 200; i++ {
		d := p.Delay(3)
		assert.GreaterOrEqual(t, d, 3200*time.Millisecond)
		assert.LessOrEqual(t, d, 4800*time.Millisecond)
	}
}

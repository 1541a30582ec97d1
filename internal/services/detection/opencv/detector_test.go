package opencv

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"

	"beecount-worker-go/internal/models"
)

func TestContourCentroid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		points []image.Point
		want   models.Point
		wantOK bool
	}{
		{
			name:   "rectangle",
			points: []image.Point{{10, 10}, {30, 10}, {30, 20}, {10, 20}},
			want:   models.Pt(20, 15),
			wantOK: true,
		},
		{
			// Mass sits towards the wide end, unlike the bounding box centre (15, 10)
			name:   "right triangle",
			points: []image.Point{{0, 0}, {30, 0}, {0, 20}},
			want:   models.Pt(10, 20.0/3),
			wantOK: true,
		},
		{
			name:   "degenerate segment",
			points: []image.Point{{0, 0}, {5, 0}},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			contour := gocv.NewPointVectorFromPoints(tt.points)
			defer contour.Close()

			got, ok := contourCentroid(contour)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
		})
	}
}

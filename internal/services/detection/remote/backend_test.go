package remote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"beecount-worker-go/internal/config"
	"beecount-worker-go/internal/models"
	"beecount-worker-go/internal/services/detection"
)

type localDetector struct {
	hiveID string
	out    []models.Detection
	err    error
	closed atomic.Int32
}

func (d *localDetector) Detect(context.Context, models.Frame) ([]models.Detection, error) {
	return d.out, d.err
}

func (d *localDetector) Algo() string { return config.AlgoOpenCV }

func (d *localDetector) Close() error {
	d.closed.Add(1)
	return nil
}

func decodeAny(data []byte) (models.Frame, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return jpegFrame{data: data}, nil
}

func TestBackend_ServesWorkerDetector(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	created := map[string]*localDetector{}
	backend := NewBackend(func(hiveID string) (detection.Detector, error) {
		d := &localDetector{hiveID: hiveID, out: []models.Detection{
			{Centroid: models.Pt(12, 34), Area: 150},
			{Centroid: models.Pt(56, 78)},
		}}
		mu.Lock()
		created[hiveID] = d
		mu.Unlock()
		return d, nil
	}, decodeAny)

	client := startServer(t, backend)

	stream := config.DefaultStreamConfig()
	stream.HiveID = "H007"
	stream.MinArea, stream.MaxArea = 100, 2000
	d := NewDetector(client, stream)

	got, err := d.Detect(context.Background(), jpegFrame{data: []byte{0xff, 0xd8}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.Pt(12, 34), got[0].Centroid)
	assert.Equal(t, 150.0, got[0].Area)
	assert.Equal(t, models.Pt(56, 78), got[1].Centroid)

	_, err = d.Detect(context.Background(), jpegFrame{data: []byte{0xff, 0xd8}})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Hives())

	mu.Lock()
	det, ok := created["H007"]
	mu.Unlock()
	require.True(t, ok)

	require.NoError(t, backend.Close())
	assert.Equal(t, int32(1), det.closed.Load())
}

func TestBackend_Errors(t *testing.T) {
	t.Parallel()

	failing := &localDetector{err: errors.New("inference failed")}
	backend := NewBackend(func(hiveID string) (detection.Detector, error) {
		switch hiveID {
		case "broken":
			return nil, errors.New("model missing")
		case "failing":
			return failing, nil
		}
		return &localDetector{}, nil
	}, decodeAny)

	withHive := func(id string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs("hive-id", id))
	}
	jpeg := wrapperspb.Bytes([]byte{1, 2, 3})

	_, err := backend.Detect(context.Background(), jpeg)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = backend.Detect(withHive("broken"), jpeg)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = backend.Detect(withHive("ok"), wrapperspb.Bytes(nil))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = backend.Detect(withHive("failing"), jpeg)
	assert.Equal(t, codes.Internal, status.Code(err))

	require.NoError(t, backend.Close())
	require.NoError(t, backend.Close())
	_, err = backend.Detect(withHive("ok"), jpeg)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestStructFromDetections(t *testing.T) {
	t.Parallel()

	in := []models.Detection{
		{Centroid: models.Pt(1.5, 2.5), Area: 300},
		{Centroid: models.Pt(3, 4)},
	}
	s, err := StructFromDetections(in)
	require.NoError(t, err)

	got, err := centroidsFromStruct(s)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, in[0].Centroid, got[0].Centroid)
	assert.Equal(t, 300.0, got[0].Area)
	assert.Zero(t, got[1].Area)

	empty, err := StructFromDetections(nil)
	require.NoError(t, err)
	got, err = centroidsFromStruct(empty)
	require.NoError(t, err)
	assert.Empty(t, got)
}

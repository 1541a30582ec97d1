package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"beecount-worker-go/internal/models"
	"beecount-worker-go/internal/services/detection"
)

// DetectorFactory builds the local detector serving one hive
type DetectorFactory func(hiveID string) (detection.Detector, error)

// FrameDecoder turns request bytes into a frame owned by the caller
type FrameDecoder func(jpeg []byte) (models.Frame, error)

// Backend implements DetectorServer on top of local detectors. Stateful
// backends keep a model per hive, so each hive gets its own detector.
type Backend struct {
	newDetector DetectorFactory
	decode      FrameDecoder

	mu        sync.Mutex
	detectors map[string]detection.Detector
	closed    bool
}

func NewBackend(newDetector DetectorFactory, decode FrameDecoder) *Backend {
	return &Backend{
		newDetector: newDetector,
		decode:      decode,
		detectors:   make(map[string]detection.Detector),
	}
}

func (b *Backend) Detect(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	hiveID := firstMetadata(ctx, "hive-id")
	if hiveID == "" {
		return nil, status.Error(codes.InvalidArgument, "hive-id metadata is required")
	}

	det, err := b.detector(hiveID)
	if err != nil {
		if errors.Is(err, detection.ErrDetectorClosed) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, status.Errorf(codes.FailedPrecondition, "detector for %s: %v", hiveID, err)
	}

	frame, err := b.decode(in.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode frame: %v", err)
	}
	defer frame.Close()

	detections, err := det.Detect(ctx, frame)
	if err != nil {
		log.Warn().Err(err).Str("hive_id", hiveID).Msg("Local detection failed")
		return nil, status.Errorf(codes.Internal, "detect: %v", err)
	}

	return StructFromDetections(detections)
}

func (b *Backend) detector(hiveID string) (detection.Detector, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, detection.ErrDetectorClosed
	}
	if det, ok := b.detectors[hiveID]; ok {
		return det, nil
	}

	det, err := b.newDetector(hiveID)
	if err != nil {
		return nil, err
	}
	b.detectors[hiveID] = det

	log.Info().Str("hive_id", hiveID).Str("algo", det.Algo()).Msg("Created detector for hive")
	return det, nil
}

// Hives returns how many hives currently hold a detector
func (b *Backend) Hives() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.detectors)
}

// Close releases every detector. Later calls to Detect fail with Unavailable.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	for id, det := range b.detectors {
		if err := det.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	b.detectors = nil
	return errors.Join(errs...)
}

// StructFromDetections encodes detections in the reply shape read by Detector
func StructFromDetections(detections []models.Detection) (*structpb.Struct, error) {
	centroids := make([]any, 0, len(detections))
	for _, d := range detections {
		centroids = append(centroids, []any{d.Centroid.X, d.Centroid.Y, d.Area})
	}
	return structpb.NewStruct(map[string]any{"centroids": centroids})
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

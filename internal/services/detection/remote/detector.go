package remote

import (
	"context"
	"errors"
	"fmt"
	"math"

	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"beecount-worker-go/internal/config"
	"beecount-worker-go/internal/models"
	"beecount-worker-go/internal/services/detection"
)

// JPEGQuality used when shipping frames to the service
const JPEGQuality = 90

// ErrMalformedResponse is returned when the service reply cannot be read as centroids
var ErrMalformedResponse = errors.New("malformed detector response")

// Detector is the per-stream view of a shared Client
type Detector struct {
	client *Client
	hiveID string
	filter detection.AreaFilter
}

func NewDetector(client *Client, stream config.StreamConfig) *Detector {
	return &Detector{
		client: client,
		hiveID: stream.HiveID,
		filter: detection.AreaFilter{Min: stream.MinArea, Max: stream.MaxArea},
	}
}

func (d *Detector) Algo() string {
	return config.AlgoGRPC
}

func (d *Detector) Detect(ctx context.Context, frame models.Frame) ([]models.Detection, error) {
	enc, ok := frame.(models.JPEGEncoder)
	if !ok {
		return nil, fmt.Errorf("%w: %T cannot be JPEG encoded", detection.ErrUnsupportedFrame, frame)
	}

	jpeg, err := enc.EncodeJPEG(JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	ctx = metadata.AppendToOutgoingContext(ctx, "hive-id", d.hiveID, "algo", config.AlgoGRPC)
	resp, err := d.client.Detect(ctx, jpeg)
	if err != nil {
		return nil, err
	}

	detections, err := centroidsFromStruct(resp)
	if err != nil {
		return nil, err
	}
	return d.filter.Apply(detections), nil
}

// Close is a no-op: the shared Client is closed by its owner
func (d *Detector) Close() error {
	return nil
}

func centroidsFromStruct(s *structpb.Struct) ([]models.Detection, error) {
	field, ok := s.GetFields()["centroids"]
	if !ok {
		return nil, fmt.Errorf("%w: missing centroids", ErrMalformedResponse)
	}
	list := field.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: centroids is not a list", ErrMalformedResponse)
	}

	detections := make([]models.Detection, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		entry := v.GetListValue()
		if entry == nil || len(entry.GetValues()) < 2 {
			return nil, fmt.Errorf("%w: centroid %d must be [x, y, area?]", ErrMalformedResponse, i)
		}

		nums := make([]float64, 0, 3)
		for _, n := range entry.GetValues() {
			if _, isNum := n.GetKind().(*structpb.Value_NumberValue); !isNum {
				return nil, fmt.Errorf("%w: centroid %d has a non-numeric value", ErrMalformedResponse, i)
			}
			f := n.GetNumberValue()
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("%w: centroid %d has a non-finite value", ErrMalformedResponse, i)
			}
			nums = append(nums, f)
		}

		d := models.Detection{Centroid: models.Pt(nums[0], nums[1])}
		if len(nums) > 2 {
			d.Area = nums[2]
		}
		detections = append(detections, d)
	}
	return detections, nil
}

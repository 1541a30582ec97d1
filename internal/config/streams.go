package config

import (
	"fmt"
	"image"
	"os"

	"gopkg.in/yaml.v3"
)

// Detector backend tags
const (
	AlgoOpenCV = "opencv"
	AlgoYOLO   = "yolo"
	AlgoGRPC   = "grpc"
)

// Line axes
const (
	AxisX = "x"
	AxisY = "y"
)

const (
	DefaultApiaryID       = "A01"
	DefaultMaxDist        = 40.0
	DefaultMaxDisappeared = 20
	DefaultLineMargin     = 2.0
	DefaultConfidence     = 0.5
	DefaultNMSThreshold   = 0.4
	DefaultModelPath      = "yolov8n.onnx"
)

// StreamsFile is the root of the stream descriptor file
type StreamsFile struct {
	Streams []StreamConfig `yaml:"streams"`
}

// StreamConfig describes one camera feed and how its bees are counted.
// Immutable once loaded.
type StreamConfig struct {
	HiveID    string          `yaml:"hive_id"`
	ApiaryID  string          `yaml:"apiary_id"`
	URL       string          `yaml:"url"`
	ROI       []int           `yaml:"roi"` // [x, y, width, height]; empty means the full frame
	Line      LineConfig      `yaml:"line"`
	Direction DirectionConfig `yaml:"direction"`
	Algo      string          `yaml:"algo"`

	// Detection thresholds
	MinArea        float64 `yaml:"min_area"`
	MaxArea        float64 `yaml:"max_area"`
	MaxDist        float64 `yaml:"max_dist"`
	MaxDisappeared int     `yaml:"max_disappeared"`

	// Learned detector settings
	Confidence   float64 `yaml:"confidence"`
	NMSThreshold float64 `yaml:"nms_threshold"`
	ModelPath    string  `yaml:"model_path"`
}

// LineConfig is the counting line: an axis and a scalar position on it
type LineConfig struct {
	Axis   string  `yaml:"axis"`
	Pos    float64 `yaml:"pos"`
	Margin float64 `yaml:"margin"` // hysteresis half-width around Pos
}

// DirectionConfig maps physical crossing directions to in/out
type DirectionConfig struct {
	UpIsOut bool `yaml:"up_is_out"`
}

// defaultAreas holds the blob-area window per backend
var defaultAreas = map[string][2]float64{
	AlgoOpenCV: {50, 2000},
	AlgoYOLO:   {100, 5000},
	AlgoGRPC:   {0, 0},
}

// DefaultStreamConfig returns the values used for keys absent from the file
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ApiaryID:       DefaultApiaryID,
		Line:           LineConfig{Axis: AxisY, Margin: DefaultLineMargin},
		Direction:      DirectionConfig{UpIsOut: true},
		Algo:           AlgoOpenCV,
		MaxDist:        DefaultMaxDist,
		MaxDisappeared: DefaultMaxDisappeared,
		Confidence:     DefaultConfidence,
		NMSThreshold:   DefaultNMSThreshold,
		ModelPath:      DefaultModelPath,
	}
}

// UnmarshalYAML decodes a stream on top of DefaultStreamConfig so that
// omitted keys keep their defaults
func (s *StreamConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain StreamConfig
	p := plain(DefaultStreamConfig())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*s = StreamConfig(p)
	s.normalize()
	return nil
}

// DefaultAreas returns the blob-area window used by a backend when the
// stream sets none
func DefaultAreas(algo string) (minArea, maxArea float64) {
	areas := defaultAreas[algo]
	return areas[0], areas[1]
}

// normalize fills backend-dependent defaults
func (s *StreamConfig) normalize() {
	if s.MinArea == 0 && s.MaxArea == 0 {
		s.MinArea, s.MaxArea = DefaultAreas(s.Algo)
	}
}

// ROIRect returns the region of interest as a rectangle. The zero rectangle
// means the full frame.
func (s StreamConfig) ROIRect() image.Rectangle {
	if len(s.ROI) != 4 {
		return image.Rectangle{}
	}
	x, y, w, h := s.ROI[0], s.ROI[1], s.ROI[2], s.ROI[3]
	return image.Rect(x, y, x+w, y+h)
}

// LoadStreams reads and validates the stream descriptor file
func LoadStreams(path string) ([]StreamConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read streams config: %w", err)
	}

	return ParseStreams(data)
}

// ParseStreams decodes and validates stream descriptors from YAML bytes
func ParseStreams(data []byte) ([]StreamConfig, error) {
	var file StreamsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse streams config: %w", err)
	}

	if err := ValidateStreams(file.Streams); err != nil {
		return nil, fmt.Errorf("invalid streams config: %w", err)
	}

	return file.Streams, nil
}

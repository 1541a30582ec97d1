package config

import (
	"errors"
	"fmt"
	"regexp"
)

var hiveIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// ValidateStreams checks every stream descriptor and reports all problems at once
func ValidateStreams(streams []StreamConfig) error {
	if len(streams) == 0 {
		return fmt.Errorf("at least one stream is required")
	}

	var errs []error
	seen := make(map[string]int, len(streams))
	for i, s := range streams {
		if prev, dup := seen[s.HiveID]; dup && s.HiveID != "" {
			errs = append(errs, fmt.Errorf("streams[%d]: hive_id %q already used by streams[%d]", i, s.HiveID, prev))
		}
		seen[s.HiveID] = i

		if err := ValidateStream(s); err != nil {
			errs = append(errs, fmt.Errorf("streams[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// ValidateStream checks a single stream descriptor
func ValidateStream(s StreamConfig) error {
	if s.HiveID == "" {
		return fmt.Errorf("hive_id is required")
	}
	// hive_id becomes an MQTT topic level and a NATS subject token
	if !hiveIDPattern.MatchString(s.HiveID) {
		return fmt.Errorf("hive_id %q must match pattern [A-Za-z0-9_-]+", s.HiveID)
	}
	if s.URL == "" {
		return fmt.Errorf("%s: url is required", s.HiveID)
	}

	if err := validateROI(s.ROI); err != nil {
		return fmt.Errorf("%s: %w", s.HiveID, err)
	}

	switch s.Line.Axis {
	case AxisX, AxisY:
	default:
		return fmt.Errorf("%s: line.axis must be 'x' or 'y', got %q", s.HiveID, s.Line.Axis)
	}
	if s.Line.Margin < 0 {
		return fmt.Errorf("%s: line.margin must be >= 0", s.HiveID)
	}

	switch s.Algo {
	case AlgoOpenCV, AlgoYOLO, AlgoGRPC:
	default:
		return fmt.Errorf("%s: unknown algo %q (must be 'opencv', 'yolo' or 'grpc')", s.HiveID, s.Algo)
	}

	if s.MinArea < 0 || s.MaxArea < 0 {
		return fmt.Errorf("%s: min_area and max_area must be >= 0", s.HiveID)
	}
	if s.MaxArea > 0 && s.MinArea > s.MaxArea {
		return fmt.Errorf("%s: min_area (%.0f) exceeds max_area (%.0f)", s.HiveID, s.MinArea, s.MaxArea)
	}
	if s.MaxDist <= 0 {
		return fmt.Errorf("%s: max_dist must be > 0", s.HiveID)
	}
	if s.MaxDisappeared < 0 {
		return fmt.Errorf("%s: max_disappeared must be >= 0", s.HiveID)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%s: confidence must be within [0, 1]", s.HiveID)
	}
	if s.NMSThreshold < 0 || s.NMSThreshold > 1 {
		return fmt.Errorf("%s: nms_threshold must be within [0, 1]", s.HiveID)
	}

	return nil
}

func validateROI(roi []int) error {
	if len(roi) == 0 {
		return nil
	}
	if len(roi) != 4 {
		return fmt.Errorf("roi must be [x, y, width, height], got %v", roi)
	}
	if roi[0] < 0 || roi[1] < 0 {
		return fmt.Errorf("roi origin must be non-negative, got %v", roi)
	}
	if roi[2] <= 0 || roi[3] <= 0 {
		return fmt.Errorf("roi width and height must be positive, got %v", roi)
	}
	return nil
}

// Package publisher delivers per-hive telemetry to the message broker.
package publisher

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConnected is returned when the transport has no live broker connection
var ErrNotConnected = errors.New("publisher not connected")

// Publisher sends one payload to a topic. A nil error means the broker
// acknowledged delivery at the requested quality of service.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte) error
	IsConnected() bool
	Close(ctx context.Context) error
}

// Topic returns the telemetry topic for a hive
func Topic(hiveID string) string {
	return fmt.Sprintf("hives/%s/beecount", hiveID)
}

// Stats contains publisher statistics
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"unset uses default", "", 60 * time.Second},
		{"duration string", "90s", 90 * time.Second},
		{"bare integer is seconds", "30", 30 * time.Second},
		{"garbage uses default", "soon", 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BEECOUNT_TEST_PERIOD", tt.value)
			assert.Equal(t, tt.want, getEnvDuration("BEECOUNT_TEST_PERIOD", 60*time.Second))
		})
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("WORKER_ID", "apiary-edge-3")
	t.Setenv("PUBLISH_PERIOD", "120")
	t.Setenv("PUBLISH_TRANSPORT", "nats")
	t.Setenv("MQTT_HOST", "broker.local")
	t.Setenv("MQTT_PORT", "8883")
	t.Setenv("FLUSH_ON_SHUTDOWN", "false")

	cfg := Load()

	assert.Equal(t, "apiary-edge-3", cfg.WorkerID)
	assert.Equal(t, 120*time.Second, cfg.PublishPeriod)
	assert.Equal(t, "nats", cfg.PublishTransport)
	assert.Equal(t, "tcp://broker.local:8883", cfg.MQTTBroker())
	assert.False(t, cfg.FlushOnShutdown)
	assert.Equal(t, 30, cfg.FPSWindow)
	assert.Equal(t, 1, cfg.PublishQoS)
}

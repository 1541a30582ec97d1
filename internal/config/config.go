package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Stream descriptors (YAML)
	StreamsConfigPath string

	// Scheduling
	TickInterval time.Duration // Pause between two fan-out ticks
	TickTimeout  time.Duration // Bounded wait for every worker step
	FPSWindow    int           // Inter-frame intervals in the rolling fps window

	// Publishing
	PublishTransport string // mqtt | nats
	PublishPeriod    time.Duration
	PublishTimeout   time.Duration
	PublishQoS       int
	FlushOnShutdown  bool

	// MQTT
	MQTTHost           string
	MQTTPort           int
	MQTTUser           string
	MQTTPass           string
	MQTTConnectTimeout time.Duration
	MQTTKeepAlive      time.Duration

	// NATS (alternative transport)
	// Default: nats://localhost:4222 (works with Docker Compose setup)
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	NatsDrainTimeout   time.Duration

	// Publish journal
	JournalEnabled   bool
	JournalPath      string
	JournalRetention time.Duration

	// Remote detector
	DetectorGRPCURL string
	DetectorTimeout time.Duration

	// Capture
	OutputWidth  int // 0 keeps the native width
	OutputHeight int // 0 keeps the native height

	// Backoff/Jitter config for capture reinitialization
	ReconnectBackoffMin time.Duration
	ReconnectBackoffMax time.Duration
	ReconnectJitterPct  int

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "beecount-1"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		StreamsConfigPath: getEnv("STREAMS_CONFIG", "config/streams.yaml"),

		// Scheduling
		TickInterval: getEnvDuration("TICK_INTERVAL", 100*time.Millisecond),
		TickTimeout:  getEnvDuration("TICK_TIMEOUT", 5*time.Second),
		FPSWindow:    getEnvInt("FPS_WINDOW", 30),

		// Publishing
		PublishTransport: getEnv("PUBLISH_TRANSPORT", "mqtt"),
		PublishPeriod:    getEnvDuration("PUBLISH_PERIOD", 60*time.Second),
		PublishTimeout:   getEnvDuration("PUBLISH_TIMEOUT", 2*time.Second),
		PublishQoS:       getEnvInt("PUBLISH_QOS", 1),
		FlushOnShutdown:  getEnvBool("FLUSH_ON_SHUTDOWN", true),

		// MQTT
		MQTTHost:           getEnv("MQTT_HOST", "localhost"),
		MQTTPort:           getEnvInt("MQTT_PORT", 1883),
		MQTTUser:           getEnv("MQTT_USER", ""),
		MQTTPass:           getEnv("MQTT_PASS", ""),
		MQTTConnectTimeout: getEnvDuration("MQTT_CONNECT_TIMEOUT", 5*time.Second),
		MQTTKeepAlive:      getEnvDuration("MQTT_KEEPALIVE", 60*time.Second),

		// NATS
		NatsURL:            getNatsURL(),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		NatsDrainTimeout:   getEnvDuration("NATS_DRAIN_TIMEOUT", 5*time.Second),

		// Journal
		JournalEnabled:   getEnvBool("JOURNAL_ENABLED", false),
		JournalPath:      getEnv("JOURNAL_PATH", "beecount-journal.db"),
		JournalRetention: getEnvDuration("JOURNAL_RETENTION", 7*24*time.Hour),

		// Remote detector
		DetectorGRPCURL: getEnv("DETECTOR_GRPC_URL", "localhost:50052"),
		DetectorTimeout: getEnvDuration("DETECTOR_TIMEOUT", 2*time.Second),

		// Capture
		OutputWidth:  getEnvInt("OUTPUT_WIDTH", 0),
		OutputHeight: getEnvInt("OUTPUT_HEIGHT", 0),

		// Backoff/Jitter
		ReconnectBackoffMin: getEnvDuration("RECONNECT_BACKOFF_MIN", 1*time.Second),
		ReconnectBackoffMax: getEnvDuration("RECONNECT_BACKOFF_MAX", 30*time.Second),
		ReconnectJitterPct:  getEnvInt("RECONNECT_JITTER_PCT", 20),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// MQTTBroker returns the broker address in paho's tcp://host:port form
func (c *Config) MQTTBroker() string {
	return "tcp://" + c.MQTTHost + ":" + strconv.Itoa(c.MQTTPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s", "1m") and bare integers,
// which are read as seconds (PUBLISH_PERIOD=60).
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Helper functions for Docker environment detection
func isRunningInDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}

	// If running in Docker, use service name; otherwise use localhost
	if isRunningInDocker() {
		return "nats://nats:4222"
	}

	return "nats://localhost:4222"
}

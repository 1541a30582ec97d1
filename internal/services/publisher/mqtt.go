package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"beecount-worker-go/internal/config"
)

// MQTTPublisher publishes telemetry to an MQTT broker
type MQTTPublisher struct {
	broker         string
	clientID       string
	connectTimeout time.Duration
	client         mqtt.Client
	newClient      func(*mqtt.ClientOptions) mqtt.Client
	opts           *mqtt.ClientOptions

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// NewMQTTPublisher prepares a client for the configured broker. Nothing is
// dialled until Connect.
func NewMQTTPublisher(cfg *config.Config) *MQTTPublisher {
	p := &MQTTPublisher{
		broker:         cfg.MQTTBroker(),
		clientID:       fmt.Sprintf("%s-%s", cfg.WorkerID, uuid.NewString()[:8]),
		connectTimeout: cfg.MQTTConnectTimeout,
		newClient:      mqtt.NewClient,
		published:      make(map[string]uint64),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.broker)
	opts.SetClientID(p.clientID)
	if cfg.MQTTUser != "" {
		opts.SetUsername(cfg.MQTTUser)
		opts.SetPassword(cfg.MQTTPass)
	}
	opts.SetKeepAlive(cfg.MQTTKeepAlive)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		p.setConnected(true)
		log.Info().
			Str("broker", p.broker).
			Str("client_id", p.clientID).
			Msg("MQTT connection established")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		p.setConnected(false)
		log.Warn().
			Err(err).
			Str("broker", p.broker).
			Msg("MQTT connection lost, will auto-reconnect")
	}

	p.opts = opts
	return p
}

// Connect dials the broker. On timeout the client keeps retrying in the
// background and publishes fail with ErrNotConnected until it succeeds.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	p.client = p.newClient(p.opts)

	log.Info().Str("broker", p.broker).Msg("Connecting to MQTT broker")

	token := p.client.Connect()
	if err := waitToken(ctx, token, p.connectTimeout); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	p.setConnected(true)
	return nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	if !p.IsConnected() {
		p.countError()
		return ErrNotConnected
	}

	token := p.client.Publish(topic, qos, false, payload)
	if err := waitToken(ctx, token, 0); err != nil {
		p.countError()
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}

	p.mu.Lock()
	p.published[topic]++
	p.mu.Unlock()

	log.Debug().
		Str("topic", topic).
		Uint8("qos", qos).
		Int("size", len(payload)).
		Msg("Telemetry published")

	return nil
}

// waitToken blocks until the token completes, ctx ends or timeout elapses.
// A zero timeout relies on ctx alone.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return fmt.Errorf("timeout after %s", timeout)
	}
}

func (p *MQTTPublisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *MQTTPublisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

// Close disconnects with a short grace period
func (p *MQTTPublisher) Close(ctx context.Context) error {
	if p.client != nil {
		// Also stops a connect retry loop still running in the background
		p.client.Disconnect(250)
		log.Info().Msg("MQTT disconnected")
	}
	p.setConnected(false)
	return nil
}

// Stats returns publisher statistics
func (p *MQTTPublisher) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	published := make(map[string]uint64, len(p.published))
	for k, v := range p.published {
		published[k] = v
	}

	return Stats{
		Connected: p.connected,
		Published: published,
		Errors:    p.errors,
	}
}

// Package messaging publishes telemetry over NATS as an alternative to MQTT.
package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"beecount-worker-go/internal/config"
	"beecount-worker-go/internal/services/publisher"
)

type Service struct {
	conn   *nats.Conn
	cfg    *config.Config
	closed chan struct{}
}

func NewService(cfg *config.Config) (*Service, error) {
	closed := make(chan struct{})
	var closeOnce sync.Once

	opts := []nats.Option{
		nats.Name(fmt.Sprintf("beecount-%s-%s", cfg.WorkerID, uuid.NewString()[:8])),
		nats.Timeout(cfg.NatsConnectTimeout),
		nats.ReconnectWait(cfg.NatsReconnectWait),
		nats.MaxReconnects(cfg.NatsMaxReconnects),
		// An unreachable server at startup is retried like a dropped connection
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected, will reconnect")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			closeOnce.Do(func() { close(closed) })
		}),
	}

	conn, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NatsURL, err)
	}

	log.Info().Str("url", cfg.NatsURL).Msg("NATS connection established")

	return &Service{
		conn:   conn,
		cfg:    cfg,
		closed: closed,
	}, nil
}

// Subject maps an MQTT-style topic onto a NATS subject
func Subject(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

// Publish sends payload and flushes so a nil error means the server has it.
// NATS core has no per-message QoS, so qos is ignored.
func (s *Service) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	if !s.IsConnected() {
		return publisher.ErrNotConnected
	}

	subject := Subject(topic)
	if err := s.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish to %s failed: %w", subject, err)
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush after publish to %s failed: %w", subject, err)
	}
	return nil
}

func (s *Service) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

func (s *Service) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}

	// Try graceful drain with timeout, fallback to immediate close
	if err := s.conn.Drain(); err != nil {
		log.Warn().Err(err).Msg("Failed to drain NATS connection gracefully, closing immediately")
		s.conn.Close()
		return nil
	}

	// Drain closes the connection once pending messages are flushed
	select {
	case <-s.closed:
	case <-ctx.Done():
		log.Warn().Msg("NATS drain did not finish in time, closing")
		s.conn.Close()
	}
	return nil
}

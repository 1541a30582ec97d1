// Package remote delegates detection to an inference service over gRPC.
//
// The service speaks protobuf well-known types so no generated stubs are
// needed on either side: the request is a google.protobuf.BytesValue holding
// a JPEG-encoded ROI and the response is a google.protobuf.Struct of the form
// {"centroids": [[x, y, area?], ...]}.
package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName  = "beecount.v1.Detector"
	DetectMethod = "/" + ServiceName + "/Detect"
)

// Client owns one connection to the inference service, shared by every
// stream that uses the grpc backend
type Client struct {
	mu        sync.Mutex
	conn      *grpc.ClientConn
	health    healthpb.HealthClient
	grpcURL   string
	timeout   time.Duration
	dialOpts  []grpc.DialOption
	isHealthy bool
}

// NewClient prepares the connection. An unreachable service is not an error:
// the client retries on the next call.
func NewClient(grpcURL string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	log.Info().Str("url", grpcURL).Msg("Initializing remote detection client")

	c := &Client{
		grpcURL:  grpcURL,
		timeout:  timeout,
		dialOpts: append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...),
	}

	c.mu.Lock()
	err := c.connect()
	c.mu.Unlock()
	if err != nil {
		log.Warn().Err(err).Msg("Remote detection service not available, will retry later")
	}

	return c, nil
}

// connect must be called with mu held
func (c *Client) connect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	conn, err := grpc.NewClient(c.grpcURL, c.dialOpts...)
	if err != nil {
		return fmt.Errorf("failed to connect to detection service: %w", err)
	}

	health := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		conn.Close()
		return fmt.Errorf("detection service health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		conn.Close()
		return fmt.Errorf("detection service not serving: %s", resp.GetStatus())
	}

	c.conn = conn
	c.health = health
	c.isHealthy = true

	log.Info().Str("url", c.grpcURL).Msg("Successfully connected to remote detection service")
	return nil
}

func (c *Client) ensureConnection() (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isHealthy && c.conn != nil {
		return c.conn, nil
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c.conn, nil
}

func (c *Client) markUnhealthy() {
	c.mu.Lock()
	c.isHealthy = false
	c.mu.Unlock()
}

// Detect sends one JPEG to the service and returns the raw response struct
func (c *Client) Detect(ctx context.Context, jpeg []byte) (*structpb.Struct, error) {
	conn, err := c.ensureConnection()
	if err != nil {
		return nil, fmt.Errorf("detection service unavailable: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp := &structpb.Struct{}
	if err := conn.Invoke(ctx, DetectMethod, wrapperspb.Bytes(jpeg), resp); err != nil {
		c.markUnhealthy()
		return nil, err
	}
	return resp, nil
}

// HealthCheck queries the standard gRPC health service
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.ensureConnection(); err != nil {
		return err
	}

	c.mu.Lock()
	health := c.health
	c.mu.Unlock()

	resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err == nil && resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		err = fmt.Errorf("detection service not serving: %s", resp.GetStatus())
	}
	if err != nil {
		c.markUnhealthy()
	}
	return err
}

func (c *Client) IsHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isHealthy
}

func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		log.Info().Msg("Shutting down remote detection connection")
		err := c.conn.Close()
		c.conn = nil
		c.isHealthy = false
		return err
	}
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"beecount-worker-go/internal/config"
	"beecount-worker-go/internal/logging"
	"beecount-worker-go/internal/services/detection"
	"beecount-worker-go/internal/services/detection/opencv"
	"beecount-worker-go/internal/services/detection/remote"
	"beecount-worker-go/internal/services/detection/yolo"
	"beecount-worker-go/internal/services/journal"
	"beecount-worker-go/internal/services/messaging"
	"beecount-worker-go/internal/services/publisher"
	"beecount-worker-go/internal/services/stream"
	"beecount-worker-go/internal/services/streamcapture"
	"beecount-worker-go/internal/services/system"
)

// ServiceContainer holds all services
type ServiceContainer struct {
	Config     *config.Config
	CaptureSvc *streamcapture.Service
	RemoteSvc  *remote.Client // nil unless a stream uses the grpc backend
	Publisher  publisher.Publisher
	Journal    *journal.Store // nil when the journal is disabled
	System     *system.Sampler
	Manager    *stream.Manager
}

// NewServiceContainer creates a new service container. A stream whose
// detector cannot be built is skipped; the container fails only when no
// stream is left or the transport is unknown.
func NewServiceContainer(ctx context.Context, cfg *config.Config, streams []config.StreamConfig) (*ServiceContainer, error) {
	sc := &ServiceContainer{
		Config:     cfg,
		CaptureSvc: streamcapture.NewService(cfg),
		System:     system.NewSampler(),
	}

	pub, err := newPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sc.Publisher = pub

	if cfg.JournalEnabled {
		store, err := journal.NewStore(cfg.JournalPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.JournalPath).Msg("Publish journal disabled")
		} else {
			sc.Journal = store
		}
	}

	workers := make([]*stream.Worker, 0, len(streams))
	base := logging.NewServiceLogger(cfg, "stream")
	for _, s := range streams {
		det, err := sc.newDetector(s)
		if err != nil {
			log.Error().Err(err).Str("hive_id", s.HiveID).Str("algo", s.Algo).Msg("Failed to initialize detector, skipping stream")
			continue
		}

		w, err := stream.NewWorker(s, sc.open, det, stream.WorkerOptions{
			FPSWindow: cfg.FPSWindow,
			Backoff: stream.BackoffPolicy{
				Min:       cfg.ReconnectBackoffMin,
				Max:       cfg.ReconnectBackoffMax,
				JitterPct: cfg.ReconnectJitterPct,
			},
			Logger: logging.WithStream(base, s.HiveID),
		})
		if err != nil {
			det.Close()
			log.Error().Err(err).Str("hive_id", s.HiveID).Msg("Failed to create stream worker, skipping stream")
			continue
		}
		workers = append(workers, w)
	}

	if len(workers) == 0 {
		sc.closeSupport(ctx)
		return nil, errors.New("no stream could be started")
	}

	opts := []stream.ManagerOption{
		stream.WithCPUSampler(sc.System),
		stream.WithLogger(logging.NewServiceLogger(cfg, "manager")),
	}
	if sc.Journal != nil {
		opts = append(opts, stream.WithJournal(sc.Journal))
	}

	manager, err := stream.NewManager(stream.ManagerConfigFrom(cfg), sc.Publisher, workers, opts...)
	if err != nil {
		for _, w := range workers {
			w.Release()
		}
		sc.closeSupport(ctx)
		return nil, err
	}
	sc.Manager = manager

	log.Info().
		Int("configured", len(streams)).
		Int("running", len(workers)).
		Str("transport", cfg.PublishTransport).
		Bool("journal", sc.Journal != nil).
		Msg("Service container initialized")

	return sc, nil
}

func newPublisher(ctx context.Context, cfg *config.Config) (publisher.Publisher, error) {
	switch cfg.PublishTransport {
	case "", "mqtt":
		p := publisher.NewMQTTPublisher(cfg)
		if err := p.Connect(ctx); err != nil {
			// paho keeps retrying in the background
			log.Warn().Err(err).Str("broker", cfg.MQTTBroker()).Msg("MQTT broker not reachable yet, publishes will fail until it is")
		}
		return p, nil
	case "nats":
		return messaging.NewService(cfg)
	default:
		return nil, fmt.Errorf("unknown publish transport %q (must be 'mqtt' or 'nats')", cfg.PublishTransport)
	}
}

func (sc *ServiceContainer) newDetector(s config.StreamConfig) (detection.Detector, error) {
	switch s.Algo {
	case config.AlgoOpenCV:
		return opencv.New(s), nil
	case config.AlgoYOLO:
		return yolo.New(s)
	case config.AlgoGRPC:
		if sc.RemoteSvc == nil {
			client, err := remote.NewClient(sc.Config.DetectorGRPCURL, sc.Config.DetectorTimeout)
			if err != nil {
				return nil, err
			}
			sc.RemoteSvc = client
		}
		return remote.NewDetector(sc.RemoteSvc, s), nil
	default:
		return nil, fmt.Errorf("unknown algo %q", s.Algo)
	}
}

// open adapts the capture service to the worker's Opener
func (sc *ServiceContainer) open(url string) (stream.Capture, error) {
	vc, err := sc.CaptureSvc.Open(url)
	if err != nil {
		return nil, err
	}
	return vc, nil
}

// Shutdown waits for the manager to release every stream, then closes the
// shared transport, remote detector connection and journal
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	var errs []error

	if sc.Manager != nil {
		done := make(chan struct{})
		go func() {
			sc.Manager.Close()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("stream manager did not stop: %w", ctx.Err()))
		}
	}

	if err := sc.closeSupport(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (sc *ServiceContainer) closeSupport(ctx context.Context) error {
	var errs []error

	if sc.Publisher != nil {
		if err := sc.Publisher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}

	if sc.RemoteSvc != nil {
		if err := sc.RemoteSvc.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close remote detector: %w", err))
		}
	}

	if sc.Journal != nil {
		if err := sc.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}

	return errors.Join(errs...)
}

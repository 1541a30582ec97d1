// Command detector serves the beecount.v1.Detector gRPC service from local
// OpenCV or YOLO detectors, for workers configured with algo: grpc.
package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"beecount-worker-go/internal/config"
	"beecount-worker-go/internal/services/detection"
	"beecount-worker-go/internal/services/detection/opencv"
	"beecount-worker-go/internal/services/detection/remote"
	"beecount-worker-go/internal/services/detection/yolo"
	"beecount-worker-go/internal/services/streamcapture"
)

func main() {
	// Parse command line flags
	var (
		listen      = flag.String("listen", ":50052", "gRPC listen address")
		algo        = flag.String("algo", config.AlgoOpenCV, "Local backend: opencv or yolo")
		streamsPath = flag.String("streams", "", "Optional stream descriptor file for per-hive thresholds")
		logLevel    = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if level, err := zerolog.ParseLevel(*logLevel); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}

	if *algo != config.AlgoOpenCV && *algo != config.AlgoYOLO {
		log.Fatal().Str("algo", *algo).Msg("Unsupported local backend")
	}

	known := map[string]config.StreamConfig{}
	if *streamsPath != "" {
		streams, err := config.LoadStreams(*streamsPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *streamsPath).Msg("Failed to load stream configuration")
		}
		for _, s := range streams {
			known[s.HiveID] = s
		}
	}

	backend := remote.NewBackend(func(hiveID string) (detection.Detector, error) {
		s, ok := known[hiveID]
		if !ok {
			s = config.DefaultStreamConfig()
			s.HiveID = hiveID
		}
		if s.Algo != *algo {
			s.Algo = *algo
			s.MinArea, s.MaxArea = config.DefaultAreas(*algo)
		}

		if s.Algo == config.AlgoYOLO {
			return yolo.New(s)
		}
		return opencv.New(s), nil
	}, streamcapture.DecodeJPEG)

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatal().Err(err).Str("listen", *listen).Msg("Failed to listen")
	}

	srv := grpc.NewServer()
	remote.RegisterDetectorServer(srv, backend)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(remote.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, healthSrv)

	go func() {
		log.Info().
			Str("listen", *listen).
			Str("algo", *algo).
			Int("known_hives", len(known)).
			Msg("Starting detector service")
		if err := srv.Serve(lis); err != nil {
			log.Error().Err(err).Msg("Detector service stopped")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down detector service")
	healthSrv.Shutdown()
	srv.GracefulStop()

	if err := backend.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to release detectors")
	}
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"beecount-worker-go/internal/api/handlers"
	"beecount-worker-go/internal/config"
)

// Dependencies are the read-only sources the API reports on. History may be
// nil when the publish journal is disabled, Publisher when the transport
// keeps no counters.
type Dependencies struct {
	Status    handlers.StatusSource
	History   handlers.HistorySource
	System    handlers.SystemSource
	Publisher handlers.PublisherStatsSource
}

type Server struct {
	config *config.Config
	router *gin.Engine
	server *http.Server

	healthHandler  *handlers.HealthHandler
	streamsHandler *handlers.StreamsHandler
	systemHandler  *handlers.SystemHandler
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	return &Server{
		config:         cfg,
		router:         router,
		healthHandler:  handlers.NewHealthHandler(cfg.WorkerID, cfg.Version, deps.Status),
		streamsHandler: handlers.NewStreamsHandler(deps.Status, deps.History),
		systemHandler:  handlers.NewSystemHandler(cfg.WorkerID, deps.System, deps.Publisher),
	}
}

func (s *Server) Setup() error {
	s.setupMiddleware()

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	return nil
}

// Start serves until Stop is called
func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("Starting beecount worker API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping beecount worker API")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

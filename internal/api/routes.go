package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	streams := s.router.Group("/streams")
	{
		streams.GET("", s.streamsHandler.ListStreams)
		streams.GET("/:hive_id", s.streamsHandler.GetStream)
		streams.GET("/:hive_id/history", s.streamsHandler.GetHistory)
	}

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}

	s.setupSwagger()
}

package httpserver

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	api := s.echo.Group("/api/v1")
	api.Use(s.middleware.JWT.RequireJWT())

	api.GET("/door", s.getDoor)
	api.GET("/access-events", s.listAccessEvents)
}

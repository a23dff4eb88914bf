package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ueckoken/kagi/internal/core/ports"
	customMiddleware "github.com/ueckoken/kagi/internal/infrastructure/httpserver/middleware"
)

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
}

type ServerDeps struct {
	Door           ports.DoorController
	AuditService   ports.AuditService
	Tokens         ports.TokenService // nil disables bearer auth
	HealthCheckers []ports.HealthChecker
	// Registry defaults to the prometheus default registry.
	Registry *prometheus.Registry
}

// Server is the read-only status surface. It never mutates the door.
type Server struct {
	echo           *echo.Echo
	config         *ServerConfig
	logger         *logrus.Logger
	door           ports.DoorController
	auditSvc       ports.AuditService
	middleware     *customMiddleware.MiddlewareCollection
	healthCheckers []ports.HealthChecker
	registerer     prometheus.Registerer
	gatherer       prometheus.Gatherer
}

func NewServer(serverConfig *ServerConfig, logger *logrus.Logger, deps ServerDeps) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	server := &Server{
		echo:           e,
		config:         serverConfig,
		logger:         logger,
		door:           deps.Door,
		auditSvc:       deps.AuditService,
		healthCheckers: deps.HealthCheckers,
		registerer:     prometheus.DefaultRegisterer,
		gatherer:       prometheus.DefaultGatherer,
	}
	if deps.Registry != nil {
		server.registerer = deps.Registry
		server.gatherer = deps.Registry
	}

	requestsTotal, requestDuration, err := newHTTPMetrics(server.registerer)
	if err != nil {
		return nil, err
	}
	server.middleware = customMiddleware.NewMiddlewareCollection(deps.Tokens, logger, requestsTotal, requestDuration)

	server.setupMiddleware()
	server.setupRoutes()

	return server, nil
}

package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ueckoken/kagi/internal/core/ports"
)

// MiddlewareCollection holds all middleware instances
type MiddlewareCollection struct {
	JWT     *JWTMiddleware
	Logging *LoggingMiddleware
	Metrics *MetricsMiddleware
}

// NewMiddlewareCollection creates a new collection of all middleware.
// A nil tokens service turns the JWT middleware into a pass-through.
func NewMiddlewareCollection(
	tokens ports.TokenService,
	logger *logrus.Logger,
	requestsTotal *prometheus.CounterVec,
	requestDuration *prometheus.HistogramVec,
) *MiddlewareCollection {
	return &MiddlewareCollection{
		JWT:     NewJWTMiddleware(tokens, logger),
		Logging: NewLoggingMiddleware(logger),
		Metrics: NewMetricsMiddleware(requestsTotal, requestDuration),
	}
}

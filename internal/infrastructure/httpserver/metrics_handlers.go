package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newHTTPMetrics(reg prometheus.Registerer) (*prometheus.CounterVec, *prometheus.HistogramVec, error) {
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kagi_http_requests_total",
			Help: "The total number of status server requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "kagi_http_request_duration_seconds",
			Help: "The status server request latencies in seconds",
		},
		[]string{"method", "endpoint"},
	)
	for _, c := range []prometheus.Collector{requestsTotal, requestDuration} {
		if err := reg.Register(c); err != nil {
			return nil, nil, err
		}
	}
	return requestsTotal, requestDuration, nil
}

func (s *Server) metricsEndpoint(c echo.Context) error {
	promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP(c.Response(), c.Request())
	return nil
}

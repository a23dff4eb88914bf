package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	impl "github.com/ueckoken/kagi/internal/application/services"
	"github.com/ueckoken/kagi/internal/core/domain/audit"
	"github.com/ueckoken/kagi/internal/core/domain/door"
	"github.com/ueckoken/kagi/internal/core/ports"
	"github.com/ueckoken/kagi/internal/infrastructure/httpserver"
	"github.com/ueckoken/kagi/test/mocks"
)

func newTestServer(t *testing.T, deps httpserver.ServerDeps) *httpserver.Server {
	t.Helper()
	deps.Registry = prometheus.NewRegistry()
	srv, err := httpserver.NewServer(&httpserver.ServerConfig{Addr: "127.0.0.1:0", Version: "test"}, nil, deps)
	require.NoError(t, err)
	return srv
}

func do(srv *httpserver.Server, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealth_AllHealthy(t *testing.T) {
	srv := newTestServer(t, httpserver.ServerDeps{HealthCheckers: []ports.HealthChecker{
		&mocks.HealthCheckerMock{NameValue: "redis"},
		&mocks.HealthCheckerMock{NameValue: "door_loop"},
	}})

	rec := do(srv, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body.Status)
	require.Equal(t, "healthy", body.Dependencies["door_loop"])
}

func TestHealth_DegradedReturns503(t *testing.T) {
	srv := newTestServer(t, httpserver.ServerDeps{HealthCheckers: []ports.HealthChecker{
		&mocks.HealthCheckerMock{NameValue: "redis", CheckFn: func(ctx context.Context) error { return errors.New("refused") }},
	}})

	rec := do(srv, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"redis":"unhealthy"`)
}

func TestDoor_ReportsSnapshot(t *testing.T) {
	at := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	ctrl := &mocks.DoorControllerMock{SnapshotFn: func() ports.DoorSnapshot {
		return ports.DoorSnapshot{State: door.Unlocked, StateName: "unlocked", LastAction: "unlock", LastTransition: at, Transitions: 3}
	}}
	srv := newTestServer(t, httpserver.ServerDeps{Door: ctrl})

	rec := do(srv, "/api/v1/door", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"state":"unlocked","last_action":"unlock","last_transition":"2024-04-01T09:00:00Z","transitions":3}`, rec.Body.String())
}

func TestAccessEvents_PassesFilter(t *testing.T) {
	var seen *audit.AccessEventFilter
	svc := &mocks.AuditServiceMock{GetAccessEventsFn: func(ctx context.Context, f *audit.AccessEventFilter) ([]*audit.AccessEvent, int, error) {
		seen = f
		return []*audit.AccessEvent{{Status: "verified", Granted: true}}, 7, nil
	}}
	srv := newTestServer(t, httpserver.ServerDeps{AuditService: svc})

	rec := do(srv, "/api/v1/access-events?limit=5&offset=10&granted=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, seen.Limit)
	require.Equal(t, 10, seen.Offset)
	require.NotNil(t, seen.Granted)
	require.True(t, *seen.Granted)
	require.Contains(t, rec.Body.String(), `"total":7`)
}

func TestAccessEvents_BadQuery(t *testing.T) {
	srv := newTestServer(t, httpserver.ServerDeps{AuditService: &mocks.AuditServiceMock{}})
	require.Equal(t, http.StatusBadRequest, do(srv, "/api/v1/access-events?limit=-1", "").Code)
	require.Equal(t, http.StatusBadRequest, do(srv, "/api/v1/access-events?granted=maybe", "").Code)
}

func TestAccessEvents_DisabledAudit(t *testing.T) {
	srv := newTestServer(t, httpserver.ServerDeps{})
	require.Equal(t, http.StatusNotFound, do(srv, "/api/v1/access-events", "").Code)
}

func TestAPI_RequiresTokenWhenConfigured(t *testing.T) {
	tokens, err := impl.NewTokenService("s3cret")
	require.NoError(t, err)
	srv := newTestServer(t, httpserver.ServerDeps{Door: &mocks.DoorControllerMock{}, Tokens: tokens})

	require.Equal(t, http.StatusUnauthorized, do(srv, "/api/v1/door", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(srv, "/api/v1/door", "garbage").Code)

	tok, err := tokens.Issue("operator", time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, do(srv, "/api/v1/door", tok.AccessToken).Code)

	// health stays open for probes
	require.Equal(t, http.StatusOK, do(srv, "/health", "").Code)
}

func TestMetrics_CountsRequests(t *testing.T) {
	srv := newTestServer(t, httpserver.ServerDeps{})
	do(srv, "/health", "")

	rec := do(srv, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `kagi_http_requests_total{endpoint="/health",method="GET",status="200"} 1`)
}

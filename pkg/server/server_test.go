package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Big0290/memory-context-manager-v2/internal/cache"
	"github.com/Big0290/memory-context-manager-v2/internal/orchestrator"
	"github.com/Big0290/memory-context-manager-v2/internal/registry"
	"github.com/Big0290/memory-context-manager-v2/internal/source"
	"github.com/Big0290/memory-context-manager-v2/internal/strategy"
	"github.com/Big0290/memory-context-manager-v2/pkg/server"
)

func newServer(t *testing.T, sources ...source.Source) (*server.Server, *registry.Registry) {
	t.Helper()

	sel, err := strategy.NewSelector(strategy.Defaults())
	require.NoError(t, err)
	reg, err := registry.New(registry.DefaultConfig(), nil)
	require.NoError(t, err)
	for _, src := range sources {
		reg.Register(src)
	}
	respCache := cache.New[orchestrator.Response](cache.DefaultConfig())
	eng, err := orchestrator.NewEngine(orchestrator.DefaultConfig(), sel, reg, respCache, nil)
	require.NoError(t, err)

	return server.NewServer(server.DefaultConfig(), eng, reg, nil), reg
}

func do(t *testing.T, s *server.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newServer(t,
		source.NewStatic("a", source.TypeKnowledge, 5, &source.Payload{Content: "x"}),
	)

	rec := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health server.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "memctxd", health.Service)
	assert.Equal(t, 1, health.Healthy)
	assert.Equal(t, 0, health.Unhealthy)
}

func TestHealthzDegradedWhenNoHealthySources(t *testing.T) {
	s, reg := newServer(t,
		source.NewStatic("flaky", source.TypeKnowledge, 5, &source.Payload{Content: "x"}),
	)

	// Two consecutive failures demote the only source to degraded.
	for range 2 {
		require.NoError(t, reg.RecordOutcome("flaky", source.Result{
			SourceID: "flaky",
			Status:   source.StatusError,
		}))
	}

	rec := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health server.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, 0, health.Healthy)
	assert.Equal(t, 1, health.Degraded)
}

func TestReadyz(t *testing.T) {
	s, _ := newServer(t)
	rec := do(t, s, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newServer(t)
	rec := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestQuery(t *testing.T) {
	s, _ := newServer(t,
		source.NewStatic("kb", source.TypeKnowledge, 5, &source.Payload{
			Content:    "useful context",
			Confidence: 0.9,
		}),
	)

	rec := do(t, s, http.MethodPost, "/v1/context/query",
		`{"query": "what am I working on", "request_type": "urgent"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp orchestrator.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, strategy.Immediate, resp.Strategy)
	assert.Equal(t, "useful context", resp.MergedContent)
	assert.Equal(t, []string{"kb"}, resp.SourcesUsed)
	assert.NotEmpty(t, resp.RequestID)
}

func TestQueryMissingQuery(t *testing.T) {
	s, _ := newServer(t)
	rec := do(t, s, http.MethodPost, "/v1/context/query", `{"request_type": "urgent"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryMalformedBody(t *testing.T) {
	s, _ := newServer(t)
	rec := do(t, s, http.MethodPost, "/v1/context/query", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryUnknownStrategy(t *testing.T) {
	s, _ := newServer(t,
		source.NewStatic("kb", source.TypeKnowledge, 5, &source.Payload{Content: "x"}),
	)
	rec := do(t, s, http.MethodPost, "/v1/context/query", `{"query": "q", "strategy": "warp"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSources(t *testing.T) {
	s, _ := newServer(t,
		source.NewStatic("alpha", source.TypeKnowledge, 5, &source.Payload{Content: "x"}),
		source.NewStatic("beta", source.TypeProject, 8, &source.Payload{Content: "y"}),
	)

	rec := do(t, s, http.MethodGet, "/v1/sources", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []registry.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha", infos[0].ID)
	assert.Equal(t, "beta", infos[1].ID)
	assert.Equal(t, registry.Healthy, infos[0].Health)
}

func TestStartAndShutdown(t *testing.T) {
	s, _ := newServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	err := <-done
	assert.ErrorIs(t, err, http.ErrServerClosed)
}

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Big0290/memory-context-manager-v2/internal/cache"
	"github.com/Big0290/memory-context-manager-v2/internal/registry"
	"github.com/Big0290/memory-context-manager-v2/internal/source"
	"github.com/Big0290/memory-context-manager-v2/internal/strategy"
)

// Config holds integration and caching tunables for the engine.
type Config struct {
	// Weights combine relevance/confidence/freshness into the overall
	// quality score.
	Weights Weights

	// FreshnessHalfLife is the age at which a contributor's freshness
	// contribution halves.
	FreshnessHalfLife time.Duration

	// DefaultConfidence substitutes for sources that report none.
	DefaultConfidence float64

	// CacheBucket is the coarse time window folded into cache keys.
	CacheBucket time.Duration

	// CacheTTL maps strategy names to response TTLs.
	CacheTTL map[string]time.Duration

	// DegradedTTL is the much shorter TTL applied to degraded responses so
	// a transient outage is not frozen into subsequent responses.
	DegradedTTL time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Weights:           DefaultWeights(),
		FreshnessHalfLife: 10 * time.Minute,
		DefaultConfidence: 0.5,
		CacheBucket:       5 * time.Minute,
		CacheTTL: map[string]time.Duration{
			strategy.Immediate:     30 * time.Second,
			strategy.Predictive:    time.Minute,
			strategy.Comprehensive: 5 * time.Minute,
		},
		DegradedTTL: 15 * time.Second,
	}
}

// Validate checks config for errors.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.FreshnessHalfLife <= 0 {
		return fmt.Errorf("freshness half life must be > 0")
	}
	if c.DefaultConfidence < 0 || c.DefaultConfidence > 1 {
		return fmt.Errorf("default confidence must be in [0,1]")
	}
	if c.DegradedTTL <= 0 {
		return fmt.Errorf("degraded ttl must be > 0")
	}
	return nil
}

// ttlFor resolves the cache TTL for a response.
func (c Config) ttlFor(strategyName string, degraded bool) time.Duration {
	if degraded {
		return c.DegradedTTL
	}
	if ttl, ok := c.CacheTTL[strategyName]; ok && ttl > 0 {
		return ttl
	}
	return c.DegradedTTL
}

// Engine is the orchestrator facade: the single entry point wiring strategy
// selection, candidate filtering, scatter-gather execution, integration and
// response caching into one request/response call.
type Engine struct {
	selector *strategy.Selector
	registry *registry.Registry
	cache    *cache.Cache[Response]

	cfg     Config
	logger  *zap.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewEngine creates the orchestrator facade. The registry and cache are
// injected, explicitly-owned components: tests construct fresh ones per case
// and the daemon shares one of each across all requests.
func NewEngine(cfg Config, selector *strategy.Selector, reg *registry.Registry, respCache *cache.Cache[Response], logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if selector == nil {
		return nil, fmt.Errorf("strategy selector is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("source registry is required")
	}
	if respCache == nil {
		return nil, fmt.Errorf("response cache is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		selector: selector,
		registry: reg,
		cache:    respCache,
		cfg:      cfg,
		logger:   logger.Named("orchestrator"),
		tracer:   otel.Tracer("memctxd/orchestrator"),
	}, nil
}

// SetMetrics attaches the metrics tracker. Optional.
func (e *Engine) SetMetrics(m *Metrics) {
	e.metrics = m
}

// Handle serves one context request.
//
// Individual source failures never propagate: the only error Handle returns
// is a configuration error (unknown strategy name). Health updates for all
// attempted sources are applied before the response is returned, so a caller
// issuing a follow-up request observes updated health state.
func (e *Engine) Handle(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	requestID := uuid.New().String()

	ctx, span := e.tracer.Start(ctx, "orchestrator.handle")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	st, err := e.selector.Select(req.RequestType, req.Strategy)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("strategy", st.Name))

	key := cache.Key(req.Query, st.Name, e.cfg.CacheBucket)
	if cached, ok := e.cache.Get(key); ok {
		cached.RequestID = requestID
		cached.ServedFromCache = true
		if e.metrics != nil {
			e.metrics.RecordRequest(st.Name, outcomeCached, time.Since(start))
		}
		e.logger.Debug("served from cache",
			zap.String("request_id", requestID),
			zap.String("strategy", st.Name))
		return &cached, nil
	}

	candidates := e.registry.SelectCandidates(req.RequestType, st)
	if len(candidates) == 0 {
		// No eligible sources: immediate degraded fallback, no waiting.
		// Deliberately not cached so a source registered a moment later
		// is picked up right away.
		resp := e.fallback(requestID, st)
		if e.metrics != nil {
			e.metrics.RecordRequest(st.Name, outcomeFallback, time.Since(start))
		}
		e.logger.Warn("no candidate sources",
			zap.String("request_id", requestID),
			zap.String("strategy", st.Name),
			zap.String("request_type", req.RequestType))
		return resp, nil
	}

	// Pre-request health snapshot: quality scoring reads the state the
	// request found, while RecordOutcome below advances it.
	infos := make(map[string]registry.Info, len(candidates))
	for _, src := range candidates {
		if info, err := e.registry.InfoFor(src.ID()); err == nil {
			infos[src.ID()] = info
		}
	}

	srcReq := &source.Request{
		Query:         req.Query,
		RequestType:   req.RequestType,
		CallerContext: req.CallerContext,
	}
	results, elapsed := e.execute(ctx, candidates, st, srcReq)

	// Health bookkeeping happens before the response is handed back:
	// read-after-write consistency for health, exactly once per attempt.
	for _, res := range results {
		if err := e.registry.RecordOutcome(res.SourceID, res); err != nil {
			e.logger.Error("failed to record source outcome",
				zap.String("source", res.SourceID),
				zap.Error(err))
		}
	}

	resp := e.integrate(results, st, infos)
	resp.RequestID = requestID
	resp.Elapsed = elapsed

	e.cache.Put(key, *resp, e.cfg.ttlFor(st.Name, resp.Degraded))

	if e.metrics != nil {
		e.metrics.RecordRequest(st.Name, outcomeLive, time.Since(start))
		if resp.Degraded {
			e.metrics.RecordDegraded(st.Name)
		}
	}
	e.logger.Info("request handled",
		zap.String("request_id", requestID),
		zap.String("strategy", st.Name),
		zap.Int("attempted", len(resp.SourcesAttempted)),
		zap.Int("used", len(resp.SourcesUsed)),
		zap.Bool("degraded", resp.Degraded),
		zap.Float64("quality", resp.Quality.Overall),
		zap.Duration("elapsed", elapsed))

	return resp, nil
}

// fallback builds the minimal always-a-response answer for requests that
// found no usable sources.
func (e *Engine) fallback(requestID string, st strategy.Strategy) *Response {
	return &Response{
		RequestID:        requestID,
		Strategy:         st.Name,
		SourcesUsed:      []string{},
		SourcesAttempted: []string{},
		Recommendations:  []string{},
		Degraded:         true,
	}
}

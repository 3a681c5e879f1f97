// Package registry holds all registered context sources and tracks their
// health and reliability.
//
// The registry is shared by every concurrent request. Reads (candidate
// selection) take a read lock on the source map; health updates lock only the
// entry being updated, so outcomes for unrelated sources never contend and
// concurrent updates to the same source serialize (single-writer semantics
// for the reliability decay formula).
//
// Health state machine:
//
//	Healthy   -> Degraded   reliability < warn threshold, or >= 2 consecutive failures
//	Degraded  -> Unhealthy  consecutive failures >= hard limit, or reliability < fail threshold
//	Unhealthy -> Healthy    cooldown elapsed AND the next attempted call succeeds
//
// Unhealthy sources are excluded from selection except for low-frequency
// recovery probes, rate limited to roughly one per cooldown period.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Big0290/memory-context-manager-v2/internal/source"
	"github.com/Big0290/memory-context-manager-v2/internal/strategy"
)

// Errors for registry operations.
var (
	ErrSourceNotFound = errors.New("source not found")
	ErrNoCandidates   = errors.New("no candidate sources available")
)

// latencyWindow caps the sample count used for the rolling latency mean so
// old history ages out.
const latencyWindow = 100

// HealthStatus is the coarse health classification of a source.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// Config holds health-tracking tunables.
type Config struct {
	// Alpha is the EWMA weight for new outcomes in the reliability score.
	Alpha float64

	// WarnThreshold demotes a source to Degraded when reliability drops
	// below it.
	WarnThreshold float64

	// FailThreshold demotes a source to Unhealthy when reliability drops
	// below it.
	FailThreshold float64

	// ConsecutiveFailureLimit is the hard failure count for Unhealthy.
	ConsecutiveFailureLimit int

	// RecoveryCooldown is how long an Unhealthy source sits out before it
	// becomes eligible for a recovery probe.
	RecoveryCooldown time.Duration

	// ReevalInterval is the period of the background health re-evaluation
	// loop started by Run.
	ReevalInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:                   0.3,
		WarnThreshold:           0.5,
		FailThreshold:           0.2,
		ConsecutiveFailureLimit: 5,
		RecoveryCooldown:        30 * time.Second,
		ReevalInterval:          30 * time.Second,
	}
}

// Validate checks config for errors.
func (c Config) Validate() error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return errors.New("alpha must be in (0,1]")
	}
	if c.WarnThreshold <= c.FailThreshold {
		return errors.New("warn threshold must be above fail threshold")
	}
	if c.ConsecutiveFailureLimit < 2 {
		return errors.New("consecutive failure limit must be >= 2")
	}
	if c.RecoveryCooldown <= 0 {
		return errors.New("recovery cooldown must be > 0")
	}
	return nil
}

// Info is a point-in-time snapshot of one source's registration and health.
type Info struct {
	ID                  string        `json:"id"`
	Type                source.Type   `json:"type"`
	Priority            int           `json:"priority"`
	Health              HealthStatus  `json:"health"`
	Reliability         float64       `json:"reliability"`
	AvgLatency          time.Duration `json:"avg_latency"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	TotalCalls          int64         `json:"total_calls"`
	LastSuccessAt       time.Time     `json:"last_success_at,omitzero"`
	LastFailureAt       time.Time     `json:"last_failure_at,omitzero"`
}

// entry pairs a source with its mutable health state. The embedded mutex
// serializes health updates per source.
type entry struct {
	src source.Source

	mu                  sync.Mutex
	health              HealthStatus
	reliability         float64
	avgLatency          time.Duration
	latencySamples      int64
	totalCalls          int64
	consecutiveFailures int
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	unhealthySince      time.Time
	probe               *rate.Limiter
}

// snapshot copies the entry state under its lock.
func (e *entry) snapshot() Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Info{
		ID:                  e.src.ID(),
		Type:                e.src.Type(),
		Priority:            e.src.Priority(),
		Health:              e.health,
		Reliability:         e.reliability,
		AvgLatency:          e.avgLatency,
		ConsecutiveFailures: e.consecutiveFailures,
		TotalCalls:          e.totalCalls,
		LastSuccessAt:       e.lastSuccessAt,
		LastFailureAt:       e.lastFailureAt,
	}
}

// Registry manages context sources and their health.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	cfg     Config
	logger  *zap.Logger
	metrics *Metrics
}

// New creates a registry with the given config.
func New(cfg Config, logger *zap.Logger) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*entry),
		cfg:     cfg,
		logger:  logger.Named("registry"),
	}, nil
}

// SetMetrics attaches the metrics tracker. Optional.
func (r *Registry) SetMetrics(m *Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// Register adds or replaces a source by id. New sources start Healthy with a
// reliability of 1.0; re-registering an id resets its health state.
func (r *Registry) Register(src source.Source) {
	e := &entry{
		src:         src,
		health:      Healthy,
		reliability: 1.0,
		probe:       rate.NewLimiter(rate.Every(r.cfg.RecoveryCooldown), 1),
	}

	r.mu.Lock()
	r.entries[src.ID()] = e
	m := r.metrics
	n := len(r.entries)
	r.mu.Unlock()

	if m != nil {
		m.SetSourceHealth(src.ID(), Healthy)
		m.SetRegistered(n)
	}
	r.logger.Info("source registered",
		zap.String("source", src.ID()),
		zap.String("type", string(src.Type())),
		zap.Int("priority", src.Priority()))
}

// Get returns the source registered under id.
func (r *Registry) Get(id string) (source.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrSourceNotFound
	}
	return e.src, nil
}

// InfoFor returns the health snapshot of one source.
func (r *Registry) InfoFor(id string) (Info, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return Info{}, ErrSourceNotFound
	}
	return e.snapshot(), nil
}

// Snapshot returns health info for all registered sources, ordered by id.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.snapshot())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// SelectCandidates returns sources eligible for the request, ranked per the
// strategy and truncated to its max source count.
//
// Ranking: Healthy above Degraded, then declared priority (priority ranking)
// or reliability (relevance ranking), with the other dimension as tie-break.
// If requestType names a source type, candidates are filtered to that type;
// any other (or empty) request type is generic and matches all types.
//
// At most one cooled-down Unhealthy source is appended in the last free slot
// as a recovery probe, subject to its per-source rate limiter.
func (r *Registry) SelectCandidates(requestType string, st strategy.Strategy) []source.Source {
	wantType := source.Type(requestType)
	typed := wantType.Valid()
	now := time.Now()

	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	m := r.metrics
	r.mu.RUnlock()

	type candidate struct {
		src         source.Source
		health      HealthStatus
		priority    int
		reliability float64
	}

	var candidates []candidate
	var cooled []*entry

	for _, e := range entries {
		if typed && e.src.Type() != wantType {
			continue
		}

		e.mu.Lock()
		health := e.health
		reliability := e.reliability
		probeEligible := health == Unhealthy && now.Sub(e.unhealthySince) >= r.cfg.RecoveryCooldown
		e.mu.Unlock()

		if health == Unhealthy {
			if probeEligible {
				cooled = append(cooled, e)
			}
			continue
		}

		candidates = append(candidates, candidate{
			src:         e.src,
			health:      health,
			priority:    e.src.Priority(),
			reliability: reliability,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.health != b.health {
			return a.health == Healthy
		}
		if st.Ranking == strategy.RankRelevance {
			if a.reliability != b.reliability {
				return a.reliability > b.reliability
			}
			return a.priority > b.priority
		}
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		return a.reliability > b.reliability
	})

	selected := make([]source.Source, 0, st.MaxSources)
	for _, c := range candidates {
		if len(selected) >= st.MaxSources {
			break
		}
		selected = append(selected, c.src)
	}

	// The probe rides along in a free slot so it cannot displace a healthy
	// candidate. The rate token is consumed only once a slot is actually
	// available, so a full selection does not cost a source its probe window.
	if len(selected) < st.MaxSources {
		for _, e := range cooled {
			e.mu.Lock()
			granted := e.probe.Allow()
			e.mu.Unlock()
			if !granted {
				continue
			}
			selected = append(selected, e.src)
			if m != nil {
				m.RecordProbe(e.src.ID())
			}
			r.logger.Debug("probing unhealthy source", zap.String("source", e.src.ID()))
			break
		}
	}

	return selected
}

// RecordOutcome applies one invocation outcome to a source's health state.
// Called exactly once per attempted source per request, including timeouts
// and batch-ceiling cancellations.
func (r *Registry) RecordOutcome(id string, res source.Result) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	m := r.metrics
	r.mu.RUnlock()
	if !ok {
		return ErrSourceNotFound
	}

	success := res.Status == source.StatusSuccess
	now := time.Now()

	e.mu.Lock()

	indicator := 0.0
	if success {
		indicator = 1.0
	}
	e.reliability = r.cfg.Alpha*indicator + (1-r.cfg.Alpha)*e.reliability
	e.totalCalls++

	if res.Latency > 0 {
		if e.latencySamples < latencyWindow {
			e.latencySamples++
		}
		e.avgLatency += (res.Latency - e.avgLatency) / time.Duration(e.latencySamples)
	}

	prev := e.health
	if success {
		e.consecutiveFailures = 0
		e.lastSuccessAt = now
	} else {
		e.consecutiveFailures++
		e.lastFailureAt = now
	}
	e.health = r.nextHealth(e, success, now)
	next := e.health
	reliability := e.reliability
	failures := e.consecutiveFailures

	e.mu.Unlock()

	if m != nil {
		m.RecordOutcome(id, res.Status, res.Latency)
		m.SetReliability(id, reliability)
		if next != prev {
			m.SetSourceHealth(id, next)
		}
	}
	if next != prev {
		r.logger.Info("source health transition",
			zap.String("source", id),
			zap.String("from", string(prev)),
			zap.String("to", string(next)),
			zap.Float64("reliability", reliability),
			zap.Int("consecutive_failures", failures))
	}
	return nil
}

// nextHealth computes the post-outcome health state. Caller holds e.mu.
func (r *Registry) nextHealth(e *entry, success bool, now time.Time) HealthStatus {
	if e.health == Unhealthy {
		// Recovery requires the cooldown to have elapsed and a success.
		if success && now.Sub(e.unhealthySince) >= r.cfg.RecoveryCooldown {
			return Healthy
		}
		return Unhealthy
	}

	if e.consecutiveFailures >= r.cfg.ConsecutiveFailureLimit || e.reliability < r.cfg.FailThreshold {
		e.unhealthySince = now
		return Unhealthy
	}
	if e.reliability < r.cfg.WarnThreshold || e.consecutiveFailures >= 2 {
		return Degraded
	}
	return Healthy
}

// Run starts the periodic health re-evaluation loop and blocks until ctx is
// cancelled. The loop refreshes health gauges and logs sources stuck in
// Unhealthy; maintenance never runs on the request path.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.cfg.ReevalInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.reevaluate()
		}
	}
}

// reevaluate refreshes gauges from current state.
func (r *Registry) reevaluate() {
	r.mu.RLock()
	m := r.metrics
	r.mu.RUnlock()

	for _, info := range r.Snapshot() {
		if m != nil {
			m.SetSourceHealth(info.ID, info.Health)
			m.SetReliability(info.ID, info.Reliability)
		}
		if info.Health == Unhealthy {
			r.logger.Debug("source still unhealthy",
				zap.String("source", info.ID),
				zap.Float64("reliability", info.Reliability),
				zap.Time("last_failure", info.LastFailureAt))
		}
	}
}

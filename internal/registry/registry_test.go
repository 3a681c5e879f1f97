package registry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Big0290/memory-context-manager-v2/internal/registry"
	"github.com/Big0290/memory-context-manager-v2/internal/source"
	"github.com/Big0290/memory-context-manager-v2/internal/strategy"
)

func testConfig() registry.Config {
	cfg := registry.DefaultConfig()
	cfg.RecoveryCooldown = 50 * time.Millisecond
	return cfg
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(testConfig(), zap.NewNop())
	require.NoError(t, err)
	return reg
}

func staticSource(id string, typ source.Type, priority int) source.Source {
	return source.NewStatic(id, typ, priority, &source.Payload{Content: id})
}

func success(latency time.Duration) source.Result {
	return source.Result{Status: source.StatusSuccess, Latency: latency}
}

func failure() source.Result {
	return source.Result{Status: source.StatusError, Latency: 5 * time.Millisecond}
}

func immediateStrategy() strategy.Strategy {
	for _, st := range strategy.Defaults() {
		if st.Name == strategy.Immediate {
			return st
		}
	}
	panic("immediate strategy missing")
}

func TestRegisterAndGet(t *testing.T) {
	reg := newRegistry(t)
	reg.Register(staticSource("gitlog", source.TypeProject, 8))

	src, err := reg.Get("gitlog")
	require.NoError(t, err)
	assert.Equal(t, "gitlog", src.ID())

	_, err = reg.Get("nope")
	require.ErrorIs(t, err, registry.ErrSourceNotFound)
}

func TestRegisterResetsHealth(t *testing.T) {
	reg := newRegistry(t)
	reg.Register(staticSource("s", source.TypeProject, 5))

	for i := 0; i < 10; i++ {
		require.NoError(t, reg.RecordOutcome("s", failure()))
	}
	info, err := reg.InfoFor("s")
	require.NoError(t, err)
	require.Equal(t, registry.Unhealthy, info.Health)

	reg.Register(staticSource("s", source.TypeProject, 5))
	info, err = reg.InfoFor("s")
	require.NoError(t, err)
	assert.Equal(t, registry.Healthy, info.Health)
	assert.Equal(t, 1.0, info.Reliability)
}

func TestRecordOutcomeReliabilityDecay(t *testing.T) {
	reg := newRegistry(t)
	reg.Register(staticSource("s", source.TypeProject, 5))

	require.NoError(t, reg.RecordOutcome("s", failure()))
	info, _ := reg.InfoFor("s")
	// alpha 0.3: 0.3*0 + 0.7*1.0
	assert.InDelta(t, 0.7, info.Reliability, 1e-9)

	require.NoError(t, reg.RecordOutcome("s", success(time.Millisecond)))
	info, _ = reg.InfoFor("s")
	// 0.3*1 + 0.7*0.7
	assert.InDelta(t, 0.79, info.Reliability, 1e-9)
}

func TestRecordOutcomeUnknownSource(t *testing.T) {
	reg := newRegistry(t)
	err := reg.RecordOutcome("ghost", success(time.Millisecond))
	require.ErrorIs(t, err, registry.ErrSourceNotFound)
}

func TestHealthDegradesOnConsecutiveFailures(t *testing.T) {
	reg := newRegistry(t)
	reg.Register(staticSource("s", source.TypeProject, 5))

	require.NoError(t, reg.RecordOutcome("s", failure()))
	info, _ := reg.InfoFor("s")
	assert.Equal(t, registry.Healthy, info.Health, "one failure keeps the source healthy")

	require.NoError(t, reg.RecordOutcome("s", failure()))
	info, _ = reg.InfoFor("s")
	assert.Equal(t, registry.Degraded, info.Health, "two consecutive failures degrade")
}

func TestHealthUnhealthyAfterFailureLimit(t *testing.T) {
	reg := newRegistry(t)
	reg.Register(staticSource("s", source.TypeProject, 5))

	var sawDegraded bool
	for i := 0; i < 5; i++ {
		require.NoError(t, reg.RecordOutcome("s", failure()))
		info, _ := reg.InfoFor("s")
		if info.Health == registry.Degraded {
			sawDegraded = true
		}
		// never skips straight back to healthy
		if i >= 1 {
			assert.NotEqual(t, registry.Healthy, info.Health)
		}
	}

	info, _ := reg.InfoFor("s")
	assert.Equal(t, registry.Unhealthy, info.Health)
	assert.True(t, sawDegraded, "source passed through degraded on the way down")
}

func TestUnhealthyRecoversAfterCooldownAndSuccess(t *testing.T) {
	reg := newRegistry(t)
	reg.Register(staticSource("s", source.TypeProject, 5))

	for i := 0; i < 5; i++ {
		require.NoError(t, reg.RecordOutcome("s", failure()))
	}
	info, _ := reg.InfoFor("s")
	require.Equal(t, registry.Unhealthy, info.Health)

	// A success before the cooldown elapsed does not recover.
	require.NoError(t, reg.RecordOutcome("s", success(time.Millisecond)))
	info, _ = reg.InfoFor("s")
	assert.Equal(t, registry.Unhealthy, info.Health)

	time.Sleep(60 * time.Millisecond)

	require.NoError(t, reg.RecordOutcome("s", success(time.Millisecond)))
	info, _ = reg.InfoFor("s")
	assert.Equal(t, registry.Healthy, info.Health)
}

func TestLatencyRollingMean(t *testing.T) {
	reg := newRegistry(t)
	reg.Register(staticSource("s", source.TypeProject, 5))

	require.NoError(t, reg.RecordOutcome("s", success(100*time.Millisecond)))
	require.NoError(t, reg.RecordOutcome("s", success(200*time.Millisecond)))

	info, _ := reg.InfoFor("s")
	assert.Equal(t, 150*time.Millisecond, info.AvgLatency)
	assert.Equal(t, int64(2), info.TotalCalls)
}

func TestSelectCandidatesPriorityOrder(t *testing.T) {
	reg := newRegistry(t)
	reg.Register(staticSource("low", source.TypeProject, 2))
	reg.Register(staticSource("high", source.TypeProject, 9))
	reg.Register(staticSource("mid", source.TypeKnowledge, 5))

	selected := reg.SelectCandidates("", immediateStrategy())
	require.Len(t, selected, 3)
	assert.Equal(t, "high", selected[0].ID())
	assert.Equal(t, "mid", selected[1].ID())
	assert.Equal(t, "low", selected[2].ID())
}

func TestSelectCandidatesTypeFilter(t *testing.T) {
	reg := newRegistry(t)
	reg.Register(staticSource("proj", source.TypeProject, 5))
	reg.Register(staticSource("know", source.TypeKnowledge, 9))

	selected := reg.SelectCandidates("project", immediateStrategy())
	require.Len(t, selected, 1)
	assert.Equal(t, "proj", selected[0].ID())

	// A non-type request hint is generic.
	selected = reg.SelectCandidates("urgent", immediateStrategy())
	assert.Len(t, selected, 2)
}

func TestSelectCandidatesMaxSources(t *testing.T) {
	reg := newRegistry(t)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		reg.Register(staticSource(id, source.TypeProject, 5))
	}

	st := immediateStrategy()
	require.Equal(t, 3, st.MaxSources)
	selected := reg.SelectCandidates("", st)
	assert.Len(t, selected, 3)
}

func TestSelectCandidatesHealthyBeforeDegraded(t *testing.T) {
	reg := newRegistry(t)
	reg.Register(staticSource("shaky", source.TypeProject, 9))
	reg.Register(staticSource("solid", source.TypeProject, 2))

	// Degrade the high-priority source.
	require.NoError(t, reg.RecordOutcome("shaky", failure()))
	require.NoError(t, reg.RecordOutcome("shaky", failure()))
	info, _ := reg.InfoFor("shaky")
	require.Equal(t, registry.Degraded, info.Health)

	selected := reg.SelectCandidates("", immediateStrategy())
	require.Len(t, selected, 2)
	assert.Equal(t, "solid", selected[0].ID(), "healthy outranks degraded regardless of priority")
	assert.Equal(t, "shaky", selected[1].ID())
}

func TestSelectCandidatesExcludesUnhealthy(t *testing.T) {
	cfg := testConfig()
	cfg.RecoveryCooldown = time.Hour
	reg, err := registry.New(cfg, zap.NewNop())
	require.NoError(t, err)

	reg.Register(staticSource("dead", source.TypeProject, 9))
	reg.Register(staticSource("alive", source.TypeProject, 2))

	for i := 0; i < 5; i++ {
		require.NoError(t, reg.RecordOutcome("dead", failure()))
	}

	selected := reg.SelectCandidates("", immediateStrategy())
	require.Len(t, selected, 1)
	assert.Equal(t, "alive", selected[0].ID())
}

func TestSelectCandidatesRecoveryProbe(t *testing.T) {
	reg := newRegistry(t)
	reg.Register(staticSource("dead", source.TypeProject, 9))
	reg.Register(staticSource("alive", source.TypeProject, 2))

	for i := 0; i < 5; i++ {
		require.NoError(t, reg.RecordOutcome("dead", failure()))
	}

	time.Sleep(60 * time.Millisecond)

	selected := reg.SelectCandidates("", immediateStrategy())
	ids := make([]string, 0, len(selected))
	for _, s := range selected {
		ids = append(ids, s.ID())
	}
	assert.Contains(t, ids, "alive")
	assert.Contains(t, ids, "dead", "cooled-down unhealthy source rides along as a probe")
	assert.Equal(t, "alive", selected[0].ID(), "probe never displaces a healthy candidate")
}

func TestSelectCandidatesFullSelectionKeepsProbeWindow(t *testing.T) {
	reg := newRegistry(t)
	reg.Register(staticSource("a", source.TypeProject, 5))
	reg.Register(staticSource("b", source.TypeProject, 5))
	reg.Register(staticSource("c", source.TypeProject, 5))
	reg.Register(staticSource("know", source.TypeKnowledge, 5))
	reg.Register(staticSource("dead", source.TypeKnowledge, 9))

	for i := 0; i < 5; i++ {
		require.NoError(t, reg.RecordOutcome("dead", failure()))
	}

	time.Sleep(60 * time.Millisecond)

	// All slots taken by healthy sources, so no probe can ride along.
	st := immediateStrategy()
	require.Equal(t, 3, st.MaxSources)
	selected := reg.SelectCandidates("", st)
	require.Len(t, selected, 3)
	for _, s := range selected {
		require.NotEqual(t, "dead", s.ID())
	}

	// The full selection must not have spent the probe window: a request
	// with a free slot right after still gets the probe.
	selected = reg.SelectCandidates("knowledge", st)
	ids := make([]string, 0, len(selected))
	for _, s := range selected {
		ids = append(ids, s.ID())
	}
	assert.Contains(t, ids, "dead")
}

func TestRelevanceRankingPrefersReliability(t *testing.T) {
	reg := newRegistry(t)
	reg.Register(staticSource("flaky", source.TypeProject, 9))
	reg.Register(staticSource("steady", source.TypeProject, 2))

	// One failure drops reliability without degrading health.
	require.NoError(t, reg.RecordOutcome("flaky", failure()))

	var predictive strategy.Strategy
	for _, st := range strategy.Defaults() {
		if st.Name == strategy.Predictive {
			predictive = st
		}
	}

	selected := reg.SelectCandidates("", predictive)
	require.Len(t, selected, 2)
	assert.Equal(t, "steady", selected[0].ID())
}

func TestSnapshotOrdering(t *testing.T) {
	reg := newRegistry(t)
	reg.Register(staticSource("zeta", source.TypeProject, 1))
	reg.Register(staticSource("alpha", source.TypeKnowledge, 1))

	infos := reg.Snapshot()
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha", infos[0].ID)
	assert.Equal(t, "zeta", infos[1].ID)
}

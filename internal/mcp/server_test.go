package mcp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Big0290/memory-context-manager-v2/internal/cache"
	"github.com/Big0290/memory-context-manager-v2/internal/mcp"
	"github.com/Big0290/memory-context-manager-v2/internal/orchestrator"
	"github.com/Big0290/memory-context-manager-v2/internal/registry"
	"github.com/Big0290/memory-context-manager-v2/internal/source"
	"github.com/Big0290/memory-context-manager-v2/internal/strategy"
)

func newDeps(t *testing.T) (*orchestrator.Engine, *registry.Registry, *cache.Cache[orchestrator.Response]) {
	t.Helper()

	sel, err := strategy.NewSelector(strategy.Defaults())
	require.NoError(t, err)
	reg, err := registry.New(registry.DefaultConfig(), nil)
	require.NoError(t, err)
	respCache := cache.New[orchestrator.Response](cache.DefaultConfig())
	eng, err := orchestrator.NewEngine(orchestrator.DefaultConfig(), sel, reg, respCache, nil)
	require.NoError(t, err)
	return eng, reg, respCache
}

func TestNewServer(t *testing.T) {
	eng, reg, respCache := newDeps(t)

	s, err := mcp.NewServer(nil, eng, reg, respCache, nil)
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestNewServerWithMemory(t *testing.T) {
	eng, reg, respCache := newDeps(t)
	mem, err := source.NewMemoryStore(source.MemoryStoreConfig{}, nil)
	require.NoError(t, err)

	s, err := mcp.NewServer(mcp.DefaultConfig(), eng, reg, respCache, mem)
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestNewServerRequiresEngine(t *testing.T) {
	_, reg, respCache := newDeps(t)

	_, err := mcp.NewServer(nil, nil, reg, respCache, nil)
	require.Error(t, err)
}

func TestNewServerRequiresRegistry(t *testing.T) {
	eng, _, respCache := newDeps(t)

	_, err := mcp.NewServer(nil, eng, nil, respCache, nil)
	require.Error(t, err)
}

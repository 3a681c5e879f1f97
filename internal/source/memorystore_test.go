package source_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Big0290/memory-context-manager-v2/internal/source"
)

func newMemoryStore(t *testing.T) *source.MemoryStore {
	t.Helper()
	m, err := source.NewMemoryStore(source.MemoryStoreConfig{}, nil)
	require.NoError(t, err)
	return m
}

func TestMemoryStoreRecordAndCount(t *testing.T) {
	m := newMemoryStore(t)
	assert.Equal(t, 0, m.Count())

	id, err := m.Record(context.Background(), "prefers table-driven tests", "preference")
	require.NoError(t, err)
	assert.Contains(t, id, "mem_")
	assert.Equal(t, 1, m.Count())
}

func TestMemoryStoreRecordRejectsEmpty(t *testing.T) {
	m := newMemoryStore(t)

	_, err := m.Record(context.Background(), "   ", "preference")
	require.Error(t, err)
	assert.Equal(t, 0, m.Count())
}

func TestMemoryStoreFetchEmptyStoreReturnsEmpty(t *testing.T) {
	m := newMemoryStore(t)

	// Nothing recorded yet is not a source failure.
	payload, err := m.Fetch(context.Background(), &source.Request{Query: "anything"})
	require.NoError(t, err)
	assert.Empty(t, payload.Content)
	assert.Zero(t, payload.Confidence)
}

func TestMemoryStoreFetchReturnsRelevant(t *testing.T) {
	ctx := context.Background()
	m := newMemoryStore(t)

	_, err := m.Record(ctx, "always run the linter before committing", "preference")
	require.NoError(t, err)
	_, err = m.Record(ctx, "database migrations live in db/migrations", "decision")
	require.NoError(t, err)

	payload, err := m.Fetch(ctx, &source.Request{Query: "where do database migrations live"})
	require.NoError(t, err)
	assert.Contains(t, payload.Content, "Relevant memories:")
	assert.Contains(t, payload.Content, "db/migrations")
	assert.Contains(t, payload.Tags, "memory")
	assert.GreaterOrEqual(t, payload.Confidence, 0.0)
	assert.LessOrEqual(t, payload.Confidence, 1.0)
}

func TestMemoryStoreFetchCategoryTags(t *testing.T) {
	ctx := context.Background()
	m, err := source.NewMemoryStore(source.MemoryStoreConfig{MaxResults: 2}, nil)
	require.NoError(t, err)

	_, err = m.Record(ctx, "uses conventional commit messages", "preference")
	require.NoError(t, err)
	_, err = m.Record(ctx, "commit messages reference the ticket number", "correction")
	require.NoError(t, err)

	payload, err := m.Fetch(ctx, &source.Request{Query: "commit messages style"})
	require.NoError(t, err)
	assert.Contains(t, payload.Tags, "preference")
	assert.Contains(t, payload.Tags, "correction")
}

func TestMemoryStoreDefaultCategory(t *testing.T) {
	ctx := context.Background()
	m := newMemoryStore(t)

	_, err := m.Record(ctx, "the staging cluster is eu-west-1", "")
	require.NoError(t, err)

	payload, err := m.Fetch(ctx, &source.Request{Query: "staging cluster region"})
	require.NoError(t, err)
	assert.Contains(t, payload.Tags, "note")
}

func TestMemoryStoreSourceIdentity(t *testing.T) {
	m := newMemoryStore(t)
	assert.Equal(t, "memory", m.ID())
	assert.Equal(t, source.TypePersonal, m.Type())
	assert.Equal(t, 6, m.Priority())
}

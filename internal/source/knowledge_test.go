package source_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Big0290/memory-context-manager-v2/internal/source"
)

var kbEntries = []source.KnowledgeEntry{
	{
		Title:    "Error handling conventions",
		Body:     "Wrap errors with fmt.Errorf and %w. Sentinel errors live at package level.",
		Keywords: []string{"errors", "wrapping", "sentinel"},
		Tags:     []string{"convention"},
	},
	{
		Title:    "Cache eviction runbook",
		Body:     "The response cache evicts least-recently-used entries per shard.",
		Keywords: []string{"cache", "eviction", "lru"},
		Tags:     []string{"reference"},
	},
	{
		Title:    "Deploy checklist",
		Body:     "Run migrations before rolling the daemon.",
		Keywords: []string{"deploy", "release"},
	},
}

func TestKnowledgeFetchMatches(t *testing.T) {
	kb := source.NewKnowledgeFromEntries(kbEntries, source.KnowledgeConfig{}, nil)

	payload, err := kb.Fetch(context.Background(), &source.Request{Query: "how does cache eviction work"})
	require.NoError(t, err)
	assert.Contains(t, payload.Content, "least-recently-used")
	assert.NotContains(t, payload.Content, "migrations")
	assert.Greater(t, payload.Confidence, 0.0)
	assert.Contains(t, payload.Tags, "convention")
}

func TestKnowledgeFetchTitleOutranksKeyword(t *testing.T) {
	kb := source.NewKnowledgeFromEntries(kbEntries, source.KnowledgeConfig{}, nil)

	payload, err := kb.Fetch(context.Background(), &source.Request{Query: "error handling"})
	require.NoError(t, err)
	assert.Contains(t, payload.Content, "Error handling conventions")
}

func TestKnowledgeFetchNoMatchReturnsEmpty(t *testing.T) {
	kb := source.NewKnowledgeFromEntries(kbEntries, source.KnowledgeConfig{}, nil)

	payload, err := kb.Fetch(context.Background(), &source.Request{Query: "kubernetes deployment rollout"})
	require.NoError(t, err, "a query that matches nothing is not a source failure")
	assert.Empty(t, payload.Content)
	assert.Zero(t, payload.Confidence)
}

func TestKnowledgeFetchEmptyQueryReturnsEmpty(t *testing.T) {
	kb := source.NewKnowledgeFromEntries(kbEntries, source.KnowledgeConfig{}, nil)

	// Queries made only of short tokens yield no usable terms.
	payload, err := kb.Fetch(context.Background(), &source.Request{Query: "a b"})
	require.NoError(t, err)
	assert.Empty(t, payload.Content)
}

func TestKnowledgeLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.yaml")
	yaml := `entries:
  - title: Logging conventions
    body: Use the shared zap logger. Never log secrets.
    keywords: [logging, zap]
    tags: [convention]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	kb, err := source.NewKnowledge(source.KnowledgeConfig{Path: path}, nil)
	require.NoError(t, err)
	assert.Equal(t, "knowledge", kb.ID())
	assert.Equal(t, source.TypeKnowledge, kb.Type())

	payload, err := kb.Fetch(context.Background(), &source.Request{Query: "logging setup"})
	require.NoError(t, err)
	assert.Contains(t, payload.Content, "zap logger")
}

func TestKnowledgeLoadRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entries: []\n"), 0o600))

	_, err := source.NewKnowledge(source.KnowledgeConfig{Path: path}, nil)
	require.Error(t, err)
}

func TestKnowledgeLoadRejectsMissingTitle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.yaml")
	yaml := `entries:
  - body: orphaned body
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	_, err := source.NewKnowledge(source.KnowledgeConfig{Path: path}, nil)
	require.Error(t, err)
}

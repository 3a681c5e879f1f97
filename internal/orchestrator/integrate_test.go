package orchestrator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Big0290/memory-context-manager-v2/internal/orchestrator"
	"github.com/Big0290/memory-context-manager-v2/internal/strategy"
)

func TestHandleMergesByPriorityAndDeduplicates(t *testing.T) {
	eng, _ := newEngine(t, strategy.Defaults(),
		staticSource("high", 9, "duplicated fragment", 0.9),
		staticSource("low", 3, "duplicated fragment", 0.9),
		staticSource("mid", 5, "unique fragment", 0.9),
	)

	resp, err := eng.Handle(context.Background(), &orchestrator.Request{Query: "q", RequestType: "urgent"})
	require.NoError(t, err)

	assert.Equal(t, "duplicated fragment\n\nunique fragment", resp.MergedContent)
	// Dedup affects content only; every contributor is still credited.
	assert.Equal(t, []string{"high", "mid", "low"}, resp.SourcesUsed)
}

func TestHandleQualityScores(t *testing.T) {
	eng, _ := newEngine(t, strategy.Defaults(),
		staticSource("solo", 5, "content", 0.9),
	)

	resp, err := eng.Handle(context.Background(), &orchestrator.Request{Query: "q", RequestType: "urgent"})
	require.NoError(t, err)

	// One contributor with priority 5 and confidence 0.9 against immediate's
	// max of 3 sources, on a fresh registry (reliability 1.0, never called).
	assert.InDelta(t, 0.9, resp.Quality.Relevance, 0.001)
	assert.InDelta(t, 1.0/3.0, resp.Quality.Confidence, 0.001)
	assert.InDelta(t, 1.0, resp.Quality.Freshness, 0.001)
	assert.InDelta(t, 0.4*0.9+0.3/3.0+0.3, resp.Quality.Overall, 0.001)
}

func TestHandleDefaultConfidenceSubstituted(t *testing.T) {
	eng, _ := newEngine(t, strategy.Defaults(),
		staticSource("silent", 5, "content without confidence", 0),
	)

	resp, err := eng.Handle(context.Background(), &orchestrator.Request{Query: "q", RequestType: "urgent"})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, resp.Quality.Relevance, 0.001)
}

func TestHandleRecommendations(t *testing.T) {
	eng, _ := newEngine(t, strategy.Defaults(),
		staticSource("tagged", 5, "content", 0.9, "recent-change", "convention", "graph-db"),
	)

	resp, err := eng.Handle(context.Background(), &orchestrator.Request{Query: "q", RequestType: "urgent"})
	require.NoError(t, err)

	assert.Contains(t, resp.Recommendations, "Review recent commits touching the queried area")
	assert.Contains(t, resp.Recommendations, "Follow the documented project conventions")
	assert.Contains(t, resp.Recommendations, "Explore related context: graph-db")
}

func TestHandleRecommendationsRankByFrequency(t *testing.T) {
	eng, _ := newEngine(t, strategy.Defaults(),
		staticSource("a", 5, "content a", 0.9, "memory"),
		staticSource("b", 5, "content b", 0.9, "memory", "reference"),
	)

	resp, err := eng.Handle(context.Background(), &orchestrator.Request{Query: "q", RequestType: "urgent"})
	require.NoError(t, err)
	require.Len(t, resp.Recommendations, 2)
	assert.Equal(t, "Prior session notes apply; review recorded decisions", resp.Recommendations[0])
	assert.Equal(t, "Consult the linked external references", resp.Recommendations[1])
}

func TestHandleDegradedBelowMinimum(t *testing.T) {
	eng, _ := newEngine(t, strategy.Defaults(),
		staticSource("only", 5, "thin content", 0.9),
	)

	// Comprehensive requires three contributors for full confidence.
	resp, err := eng.Handle(context.Background(), &orchestrator.Request{Query: "q", RequestType: "analysis"})
	require.NoError(t, err)
	assert.Equal(t, strategy.Comprehensive, resp.Strategy)
	assert.True(t, resp.Degraded)
	assert.Equal(t, "thin content", resp.MergedContent, "degraded responses still carry content")
}

func TestHandleEmptyPayloadNotCredited(t *testing.T) {
	eng, _ := newEngine(t, strategy.Defaults(),
		staticSource("empty", 9, "", 0.9),
		staticSource("full", 5, "real content", 0.9),
	)

	resp, err := eng.Handle(context.Background(), &orchestrator.Request{Query: "q", RequestType: "urgent"})
	require.NoError(t, err)
	assert.Equal(t, []string{"full"}, resp.SourcesUsed)
	assert.Len(t, resp.SourcesAttempted, 2)
}

package orchestrator

import (
	"time"

	"github.com/Big0290/memory-context-manager-v2/internal/source"
)

// Request is one context query from the calling layer.
type Request struct {
	// Query is the free-text query about the user's current work.
	Query string `json:"query"`

	// RequestType hints strategy selection ("urgent", "analysis", ...) and
	// may name a source type to scope the lookup.
	RequestType string `json:"request_type,omitempty"`

	// Strategy optionally overrides strategy selection by name. Unknown
	// names fail fast.
	Strategy string `json:"strategy,omitempty"`

	// CallerContext is passed through to every source unchanged.
	CallerContext map[string]any `json:"caller_context,omitempty"`
}

// Quality scores one assembled response.
type Quality struct {
	// Relevance is the priority-weighted mean of contributor-reported
	// confidence.
	Relevance float64 `json:"relevance"`

	// Confidence reflects coverage: contributors relative to the
	// strategy's max, scaled by mean contributor reliability.
	Confidence float64 `json:"confidence"`

	// Freshness decays with how long ago contributors last succeeded.
	Freshness float64 `json:"freshness"`

	// Overall is the fixed-weight combination of the three.
	Overall float64 `json:"overall"`
}

// Response is the single assembled answer for one request. The engine always
// returns a well-formed Response; quality degradation is communicated via
// Degraded and Quality.Overall, never via errors.
type Response struct {
	RequestID string `json:"request_id"`
	Strategy  string `json:"strategy"`

	// SourcesUsed lists sources that contributed content. Always a subset
	// of SourcesAttempted.
	SourcesUsed      []string `json:"sources_used"`
	SourcesAttempted []string `json:"sources_attempted"`

	MergedContent   string   `json:"merged_content"`
	Quality         Quality  `json:"quality"`
	Recommendations []string `json:"recommendations"`

	// Degraded is true iff fewer sources contributed than the strategy
	// requires for full confidence.
	Degraded bool `json:"degraded"`

	// ServedFromCache distinguishes a memoized response from a live one.
	ServedFromCache bool `json:"served_from_cache"`

	// Elapsed is the wall time spent assembling the response (zero-ish for
	// cache hits).
	Elapsed time.Duration `json:"elapsed"`

	// Results carries per-source outcomes for diagnostics.
	Results []source.Result `json:"results,omitempty"`
}

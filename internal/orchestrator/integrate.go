package orchestrator

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Big0290/memory-context-manager-v2/internal/registry"
	"github.com/Big0290/memory-context-manager-v2/internal/source"
	"github.com/Big0290/memory-context-manager-v2/internal/strategy"
)

// Weights combine the quality dimensions into the overall score. They are
// configuration, not learned values.
type Weights struct {
	Relevance  float64 `koanf:"relevance"`
	Confidence float64 `koanf:"confidence"`
	Freshness  float64 `koanf:"freshness"`
}

// DefaultWeights returns the shipped quality weighting.
func DefaultWeights() Weights {
	return Weights{Relevance: 0.4, Confidence: 0.3, Freshness: 0.3}
}

// Validate checks that the weights form a sane combination.
func (w Weights) Validate() error {
	if w.Relevance < 0 || w.Confidence < 0 || w.Freshness < 0 {
		return fmt.Errorf("quality weights must be non-negative")
	}
	if w.Relevance+w.Confidence+w.Freshness <= 0 {
		return fmt.Errorf("quality weights must not all be zero")
	}
	return nil
}

// recommendationRules maps well-known payload tags to actionable
// recommendations. Unmapped tags fall through to a generic phrasing.
var recommendationRules = map[string]string{
	"recent-change": "Review recent commits touching the queried area",
	"memory":        "Prior session notes apply; review recorded decisions",
	"convention":    "Follow the documented project conventions",
	"reference":     "Consult the linked external references",
}

// maxRecommendations caps the recommendation list.
const maxRecommendations = 5

// integrate merges partial results into one response.
//
// infos is the pre-request health snapshot of the attempted sources; quality
// scoring deliberately uses the state observed before this request so
// freshness reflects content staleness rather than the just-completed call.
func (e *Engine) integrate(results []source.Result, st strategy.Strategy, infos map[string]registry.Info) *Response {
	resp := &Response{
		Strategy:         st.Name,
		SourcesUsed:      []string{},
		SourcesAttempted: make([]string, 0, len(results)),
		Recommendations:  []string{},
		Results:          results,
	}

	var contributors []source.Result
	for _, res := range results {
		resp.SourcesAttempted = append(resp.SourcesAttempted, res.SourceID)
		if res.Status == source.StatusSuccess && res.Payload != nil && res.Payload.Content != "" {
			contributors = append(contributors, res)
		}
	}

	resp.Degraded = len(contributors) < st.MinSourcesForSuccess
	if len(contributors) == 0 {
		// Minimal fallback: the orchestrator always returns something.
		resp.Degraded = true
		return resp
	}

	// Deterministic merge order: priority desc, then id.
	sort.SliceStable(contributors, func(i, j int) bool {
		pi := infos[contributors[i].SourceID].Priority
		pj := infos[contributors[j].SourceID].Priority
		if pi != pj {
			return pi > pj
		}
		return contributors[i].SourceID < contributors[j].SourceID
	})

	resp.MergedContent = mergeContent(contributors)
	for _, c := range contributors {
		resp.SourcesUsed = append(resp.SourcesUsed, c.SourceID)
	}
	resp.Quality = e.scoreQuality(contributors, st, infos)
	resp.Recommendations = recommend(contributors, infos)
	return resp
}

// mergeContent concatenates payload fragments, dropping exact duplicates
// across sources by content hash. Semantic dedup is out of scope.
func mergeContent(contributors []source.Result) string {
	seen := make(map[uint64]struct{})
	var fragments []string
	for _, c := range contributors {
		content := strings.TrimSpace(c.Payload.Content)
		if content == "" {
			continue
		}
		h := fnv.New64a()
		h.Write([]byte(content))
		sum := h.Sum64()
		if _, dup := seen[sum]; dup {
			continue
		}
		seen[sum] = struct{}{}
		fragments = append(fragments, content)
	}
	return strings.Join(fragments, "\n\n")
}

// scoreQuality computes the relevance/confidence/freshness triple and their
// weighted overall score.
func (e *Engine) scoreQuality(contributors []source.Result, st strategy.Strategy, infos map[string]registry.Info) Quality {
	now := time.Now()

	var relevanceSum, weightSum float64
	var reliabilitySum, freshnessSum float64
	for _, c := range contributors {
		info := infos[c.SourceID]

		weight := float64(info.Priority)
		if weight < 1 {
			weight = 1
		}
		conf := c.Payload.Confidence
		if conf <= 0 {
			conf = e.cfg.DefaultConfidence
		}
		relevanceSum += weight * conf
		weightSum += weight

		reliabilitySum += info.Reliability

		if info.LastSuccessAt.IsZero() {
			// First ever call; nothing to be stale relative to.
			freshnessSum += 1
		} else {
			age := now.Sub(info.LastSuccessAt)
			freshnessSum += math.Exp2(-age.Seconds() / e.cfg.FreshnessHalfLife.Seconds())
		}
	}

	n := float64(len(contributors))
	q := Quality{
		Relevance: relevanceSum / weightSum,
		Freshness: freshnessSum / n,
	}
	coverage := n / float64(st.MaxSources)
	if coverage > 1 {
		coverage = 1
	}
	q.Confidence = coverage * (reliabilitySum / n)

	w := e.cfg.Weights
	q.Overall = (w.Relevance*q.Relevance + w.Confidence*q.Confidence + w.Freshness*q.Freshness) /
		(w.Relevance + w.Confidence + w.Freshness)
	return q
}

// recommend runs the deterministic rule pass over merged content tags,
// ranking by frequency, then by the highest priority among sources carrying
// the tag, then alphabetically.
func recommend(contributors []source.Result, infos map[string]registry.Info) []string {
	type tagStat struct {
		tag      string
		count    int
		priority int
	}
	stats := make(map[string]*tagStat)
	for _, c := range contributors {
		prio := infos[c.SourceID].Priority
		for _, tag := range c.Payload.Tags {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag == "" {
				continue
			}
			st, ok := stats[tag]
			if !ok {
				st = &tagStat{tag: tag}
				stats[tag] = st
			}
			st.count++
			if prio > st.priority {
				st.priority = prio
			}
		}
	}
	if len(stats) == 0 {
		return []string{}
	}

	ordered := make([]*tagStat, 0, len(stats))
	for _, st := range stats {
		ordered = append(ordered, st)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.count != b.count {
			return a.count > b.count
		}
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		return a.tag < b.tag
	})

	recs := make([]string, 0, maxRecommendations)
	for _, st := range ordered {
		if len(recs) >= maxRecommendations {
			break
		}
		if text, ok := recommendationRules[st.tag]; ok {
			recs = append(recs, text)
		} else {
			recs = append(recs, "Explore related context: "+st.tag)
		}
	}
	return recs
}

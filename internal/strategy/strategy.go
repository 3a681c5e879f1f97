// Package strategy defines the fixed set of orchestration strategies and the
// pure selection logic that maps a request to one of them.
//
// A strategy fixes the time budget, source-count policy and success threshold
// for one orchestration attempt. Three strategies ship by default:
//
//   - immediate: short budget, few high-priority sources, optimized for latency
//   - comprehensive: long budget, most eligible sources, optimized for completeness
//   - predictive: medium budget, sources ranked by anticipated relevance
//
// Strategies are a compile-time set; referencing an unknown strategy name is
// a configuration error and fails fast.
package strategy

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownStrategy is returned when a request names a strategy that was
// never registered. This is a programming/configuration error, not a runtime
// condition.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Ranking controls how the registry orders candidate sources for a strategy.
type Ranking string

const (
	// RankPriority orders by declared priority, then reliability.
	RankPriority Ranking = "priority"

	// RankRelevance orders by anticipated relevance: reliability first,
	// declared priority as tie-break. Used by the predictive strategy.
	RankRelevance Ranking = "relevance"
)

// Built-in strategy names.
const (
	Immediate     = "immediate"
	Comprehensive = "comprehensive"
	Predictive    = "predictive"
)

// Strategy is an immutable orchestration policy.
type Strategy struct {
	Name                 string        `json:"name"`
	TimeBudget           time.Duration `json:"time_budget"`
	TargetAccuracy       float64       `json:"target_accuracy"`
	MaxSources           int           `json:"max_sources"`
	MinSourcesForSuccess int           `json:"min_sources_for_success"`
	Ranking              Ranking       `json:"ranking"`
}

// Validate checks the strategy for malformed budgets.
func (s Strategy) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("strategy name is required")
	}
	if s.TimeBudget <= 0 {
		return fmt.Errorf("strategy %s: time budget must be > 0", s.Name)
	}
	if s.MaxSources <= 0 {
		return fmt.Errorf("strategy %s: max sources must be > 0", s.Name)
	}
	if s.MinSourcesForSuccess < 0 || s.MinSourcesForSuccess > s.MaxSources {
		return fmt.Errorf("strategy %s: min sources for success must be in [0, max_sources]", s.Name)
	}
	if s.TargetAccuracy < 0 || s.TargetAccuracy > 1 {
		return fmt.Errorf("strategy %s: target accuracy must be in [0,1]", s.Name)
	}
	if s.Ranking != RankPriority && s.Ranking != RankRelevance {
		return fmt.Errorf("strategy %s: unknown ranking %q", s.Name, s.Ranking)
	}
	return nil
}

// Defaults returns the built-in strategy set.
func Defaults() []Strategy {
	return []Strategy{
		{
			Name:                 Immediate,
			TimeBudget:           500 * time.Millisecond,
			TargetAccuracy:       0.6,
			MaxSources:           3,
			MinSourcesForSuccess: 1,
			Ranking:              RankPriority,
		},
		{
			Name:                 Comprehensive,
			TimeBudget:           5 * time.Second,
			TargetAccuracy:       0.9,
			MaxSources:           8,
			MinSourcesForSuccess: 3,
			Ranking:              RankPriority,
		},
		{
			Name:                 Predictive,
			TimeBudget:           2 * time.Second,
			TargetAccuracy:       0.75,
			MaxSources:           5,
			MinSourcesForSuccess: 2,
			Ranking:              RankRelevance,
		},
	}
}

package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/Big0290/memory-context-manager-v2/internal/orchestrator"
	"github.com/Big0290/memory-context-manager-v2/internal/registry"
)

func (s *Server) registerTools() {
	s.registerContextQuery()
	s.registerSourceStatus()
	s.registerCacheStats()
	if s.memory != nil {
		s.registerMemoryRecord()
	}
}

// ===== CONTEXT QUERY =====

type contextQueryInput struct {
	Query         string `json:"query" jsonschema:"required,What context is needed"`
	RequestType   string `json:"request_type,omitempty" jsonschema:"Request type hint (urgent interactive analysis research or a source type)"`
	Strategy      string `json:"strategy,omitempty" jsonschema:"Explicit strategy override (immediate comprehensive predictive)"`
	CallerContext string `json:"caller_context,omitempty" jsonschema:"Free-form caller context such as the current file or task"`
}

type contextQueryOutput struct {
	RequestID       string   `json:"request_id" jsonschema:"Request identifier"`
	Strategy        string   `json:"strategy" jsonschema:"Strategy used"`
	Content         string   `json:"content" jsonschema:"Merged context content"`
	SourcesUsed     []string `json:"sources_used" jsonschema:"Sources that contributed content"`
	Recommendations []string `json:"recommendations,omitempty" jsonschema:"Suggested follow-up context"`
	Relevance       float64  `json:"relevance" jsonschema:"Relevance score 0-1"`
	Confidence      float64  `json:"confidence" jsonschema:"Confidence score 0-1"`
	Freshness       float64  `json:"freshness" jsonschema:"Freshness score 0-1"`
	Overall         float64  `json:"overall" jsonschema:"Overall quality score 0-1"`
	Degraded        bool     `json:"degraded" jsonschema:"True when fewer sources answered than the strategy wanted"`
	FromCache       bool     `json:"from_cache" jsonschema:"True when served from the response cache"`
	ElapsedMs       int64    `json:"elapsed_ms" jsonschema:"End-to-end latency in milliseconds"`
}

func (s *Server) registerContextQuery() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_query",
		Description: "Gather relevant context for a coding task from all healthy sources (project activity, memories, knowledge base). Returns merged content with quality scores and follow-up recommendations.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args contextQueryInput) (*mcp.CallToolResult, contextQueryOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "context_query")
		defer s.metrics.DecrementActive(ctx, "context_query")

		var callerCtx map[string]any
		if args.CallerContext != "" {
			callerCtx = map[string]any{"note": args.CallerContext}
		}
		resp, err := s.engine.Handle(ctx, &orchestrator.Request{
			Query:         args.Query,
			RequestType:   args.RequestType,
			Strategy:      args.Strategy,
			CallerContext: callerCtx,
		})
		s.metrics.RecordInvocation(ctx, "context_query", time.Since(start), err)
		if err != nil {
			s.logger.Warn("context query failed", zap.Error(err))
			return nil, contextQueryOutput{}, err
		}

		return nil, contextQueryOutput{
			RequestID:       resp.RequestID,
			Strategy:        resp.Strategy,
			Content:         resp.MergedContent,
			SourcesUsed:     resp.SourcesUsed,
			Recommendations: resp.Recommendations,
			Relevance:       resp.Quality.Relevance,
			Confidence:      resp.Quality.Confidence,
			Freshness:       resp.Quality.Freshness,
			Overall:         resp.Quality.Overall,
			Degraded:        resp.Degraded,
			FromCache:       resp.ServedFromCache,
			ElapsedMs:       resp.Elapsed.Milliseconds(),
		}, nil
	})
}

// ===== SOURCE STATUS =====

type sourceStatusInput struct {
	// No arguments; reserved for future filtering.
}

type sourceStatusEntry struct {
	ID                  string  `json:"id" jsonschema:"Source identifier"`
	Type                string  `json:"type" jsonschema:"Source type"`
	Priority            int     `json:"priority" jsonschema:"Selection priority"`
	Health              string  `json:"health" jsonschema:"healthy degraded or unhealthy"`
	Reliability         float64 `json:"reliability" jsonschema:"Reliability score 0-1"`
	AvgLatencyMs        int64   `json:"avg_latency_ms" jsonschema:"Rolling average fetch latency"`
	ConsecutiveFailures int     `json:"consecutive_failures" jsonschema:"Failures since last success"`
	TotalCalls          int64   `json:"total_calls" jsonschema:"Lifetime fetch count"`
	LastSuccessAt       string  `json:"last_success_at,omitempty" jsonschema:"RFC3339 time of last success"`
}

type sourceStatusOutput struct {
	Sources []sourceStatusEntry `json:"sources" jsonschema:"Per-source health"`
	Healthy int                 `json:"healthy" jsonschema:"Count of healthy sources"`
	Total   int                 `json:"total" jsonschema:"Count of registered sources"`
}

func (s *Server) registerSourceStatus() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "source_status",
		Description: "Report health, reliability, and latency for every registered context source.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sourceStatusInput) (*mcp.CallToolResult, sourceStatusOutput, error) {
		start := time.Now()
		infos := s.registry.Snapshot()

		out := sourceStatusOutput{Total: len(infos)}
		for _, info := range infos {
			e := sourceStatusEntry{
				ID:                  info.ID,
				Type:                string(info.Type),
				Priority:            info.Priority,
				Health:              string(info.Health),
				Reliability:         info.Reliability,
				AvgLatencyMs:        info.AvgLatency.Milliseconds(),
				ConsecutiveFailures: info.ConsecutiveFailures,
				TotalCalls:          info.TotalCalls,
			}
			if !info.LastSuccessAt.IsZero() {
				e.LastSuccessAt = info.LastSuccessAt.Format(time.RFC3339)
			}
			if info.Health == registry.Healthy {
				out.Healthy++
			}
			out.Sources = append(out.Sources, e)
		}

		s.metrics.RecordInvocation(ctx, "source_status", time.Since(start), nil)
		return nil, out, nil
	})
}

// ===== CACHE STATS =====

type cacheStatsInput struct {
	Purge bool `json:"purge,omitempty" jsonschema:"Drop all cached responses before reporting"`
}

type cacheStatsOutput struct {
	Entries    int  `json:"entries" jsonschema:"Cached responses currently held"`
	MaxEntries int  `json:"max_entries" jsonschema:"Configured capacity"`
	Purged     bool `json:"purged" jsonschema:"True when a purge was performed"`
}

func (s *Server) registerCacheStats() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cache_stats",
		Description: "Report response cache occupancy, optionally purging it first.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args cacheStatsInput) (*mcp.CallToolResult, cacheStatsOutput, error) {
		start := time.Now()
		out := cacheStatsOutput{}
		if s.respCache != nil {
			if args.Purge {
				s.respCache.Purge()
				out.Purged = true
			}
			out.Entries = s.respCache.Len()
			out.MaxEntries = s.respCache.MaxEntries()
		}
		s.metrics.RecordInvocation(ctx, "cache_stats", time.Since(start), nil)
		return nil, out, nil
	})
}

// ===== MEMORY RECORD =====

type memoryRecordInput struct {
	Content  string `json:"content" jsonschema:"required,The memory to store"`
	Category string `json:"category,omitempty" jsonschema:"Memory category (preference decision correction note)"`
}

type memoryRecordOutput struct {
	ID    string `json:"id" jsonschema:"Stored memory identifier"`
	Count int    `json:"count" jsonschema:"Total memories now stored"`
}

func (s *Server) registerMemoryRecord() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_record",
		Description: "Store a personal memory (preference, decision, recurring correction) for future context retrieval.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args memoryRecordInput) (*mcp.CallToolResult, memoryRecordOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "memory_record")
		defer s.metrics.DecrementActive(ctx, "memory_record")

		id, err := s.memory.Record(ctx, args.Content, args.Category)
		s.metrics.RecordInvocation(ctx, "memory_record", time.Since(start), err)
		if err != nil {
			return nil, memoryRecordOutput{}, err
		}
		return nil, memoryRecordOutput{ID: id, Count: s.memory.Count()}, nil
	})
}

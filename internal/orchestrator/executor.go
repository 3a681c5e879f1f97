package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Big0290/memory-context-manager-v2/internal/source"
	"github.com/Big0290/memory-context-manager-v2/internal/strategy"
)

// slowSourceFactor bounds a historically-slow source's individual timeout to
// a multiple of its rolling average latency.
const slowSourceFactor = 3

// execute fans out one fetch per candidate source under the strategy's
// worker budget and collects whatever completed before the batch ceiling.
//
// Two timeouts apply: each fetch gets min(strategy budget, 3x the source's
// average latency), and the batch as a whole is capped at the strategy
// budget. When the ceiling passes, outstanding fetches are abandoned without
// waiting for them to acknowledge cancellation and recorded as timeouts;
// their eventual completions are discarded. Exactly one Result is returned
// per candidate.
func (e *Engine) execute(ctx context.Context, sources []source.Source, st strategy.Strategy, req *source.Request) ([]source.Result, time.Duration) {
	start := time.Now()
	if len(sources) == 0 {
		return nil, 0
	}

	batchCtx, cancel := context.WithTimeout(ctx, st.TimeBudget)
	defer cancel()

	resultsChan := make(chan source.Result, len(sources))
	sem := make(chan struct{}, st.MaxSources)

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src source.Source) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-batchCtx.Done():
				// Never started; the collector synthesizes a timeout.
				return
			}

			fetchCtx, fetchCancel := context.WithTimeout(batchCtx, e.sourceTimeout(src.ID(), st))
			defer fetchCancel()

			fetchCtx, span := e.tracer.Start(fetchCtx, "orchestrator.fetch")
			span.SetAttributes(
				attribute.String("source.id", src.ID()),
				attribute.String("source.type", string(src.Type())),
				attribute.String("strategy", st.Name),
			)
			defer span.End()

			fetchStart := time.Now()
			payload, err := safeFetch(fetchCtx, src, req)
			latency := time.Since(fetchStart)

			res := source.Result{
				SourceID: src.ID(),
				Latency:  latency,
			}
			switch {
			case err == nil:
				res.Status = source.StatusSuccess
				res.Payload = payload
			case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
				res.Status = source.StatusTimeout
				e.logger.Warn("source fetch timed out",
					zap.String("source", src.ID()),
					zap.Duration("latency", latency))
			default:
				res.Status = source.StatusError
				res.Err = err.Error()
				e.logger.Warn("source fetch failed",
					zap.String("source", src.ID()),
					zap.Error(err))
			}
			span.SetAttributes(attribute.String("fetch.status", string(res.Status)))

			// Buffered to len(sources): the send never blocks, so a late
			// completion after the ceiling is simply never read.
			resultsChan <- res
		}(src)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	collected := make(map[string]source.Result, len(sources))
collect:
	for len(collected) < len(sources) {
		select {
		case res := <-resultsChan:
			collected[res.SourceID] = res
		case <-done:
			// Drain anything that raced with the waitgroup.
			for {
				select {
				case res := <-resultsChan:
					collected[res.SourceID] = res
				default:
					break collect
				}
			}
		case <-batchCtx.Done():
			break collect
		}
	}

	// Pick up completions that landed right at the ceiling, then abandon
	// the rest as timeouts.
	for {
		select {
		case res := <-resultsChan:
			collected[res.SourceID] = res
			continue
		default:
		}
		break
	}

	results := make([]source.Result, 0, len(sources))
	for _, src := range sources {
		if res, ok := collected[src.ID()]; ok {
			results = append(results, res)
			continue
		}
		results = append(results, source.Result{
			SourceID: src.ID(),
			Status:   source.StatusTimeout,
			Latency:  st.TimeBudget,
		})
	}

	return results, time.Since(start)
}

// sourceTimeout returns the individual fetch timeout for a source:
// min(strategy budget, 3x average latency), falling back to the full budget
// until a latency history exists.
func (e *Engine) sourceTimeout(id string, st strategy.Strategy) time.Duration {
	info, err := e.registry.InfoFor(id)
	if err != nil || info.AvgLatency <= 0 {
		return st.TimeBudget
	}
	if scaled := info.AvgLatency * slowSourceFactor; scaled < st.TimeBudget {
		return scaled
	}
	return st.TimeBudget
}

// safeFetch invokes a source and converts panics into errors so a misbehaving
// adapter never aborts sibling fetches.
func safeFetch(ctx context.Context, src source.Source, req *source.Request) (payload *source.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("source panic: %v", r)
		}
	}()

	payload, err = src.Fetch(ctx, req)
	if err != nil {
		// A fetch that returned because the batch ceiling passed counts
		// as a timeout even when the adapter wrapped the context error.
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, ctxErr
		}
		return nil, err
	}
	if payload == nil {
		payload = &source.Payload{}
	}
	return payload, nil
}

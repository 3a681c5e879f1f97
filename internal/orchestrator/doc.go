// Package orchestrator assembles a single, quality-scored context response
// from several independent, heterogeneous information sources.
//
// # Overview
//
// Sources vary in latency, reliability and relevance; any of them may be
// slow, flaky, or absent. Per request the engine decides which sources to
// consult, how long to wait for them, how to combine what comes back, and
// what to return when some or all of them fail, keeping response time
// predictable throughout.
//
// # Architecture
//
// One request flows through:
//
//	cache lookup → strategy selection → candidate filtering →
//	scatter-gather execution → integration → cache store
//
// with health bookkeeping applied to every attempted source before the
// response is returned.
//
// # Key Components
//
// ## Engine
//
// Engine is the facade the tool layer calls. Handle is synchronous from the
// caller's point of view but fans out internally to a bounded set of
// concurrent source fetches. The registry and response cache are injected so
// tests can construct fresh ones per case.
//
// ## Scatter-gather execution
//
// Each candidate source is fetched concurrently under a semaphore bounded by
// the strategy's max source count. Two timeouts apply: an individual one of
// min(strategy budget, 3x the source's rolling average latency), and a batch
// ceiling equal to the strategy budget. Fetches still running at the ceiling
// are abandoned and recorded as timeouts; their late completions are
// discarded.
//
// ## Integration
//
// Successful payloads are deduplicated by content hash, merged in priority
// order, and scored on relevance, confidence and freshness. When fewer
// sources contribute than the strategy requires, the response is marked
// degraded; when none contribute, a minimal fallback response is returned
// instead of an error.
//
// # Failure semantics
//
// Source timeouts and errors are absorbed and recorded, never surfaced. The
// only error Handle returns is a configuration error such as an unknown
// strategy name.
package orchestrator

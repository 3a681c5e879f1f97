// Package source defines the contract between the orchestration engine and
// pluggable context providers, plus the built-in adapters shipped with
// memctxd.
//
// A provider implements the Source interface and registers itself with the
// registry at startup. The engine treats every source as an opaque
// asynchronous function: it calls Fetch with a bounded context and consumes
// whatever payload comes back. Sources must return Success with an empty
// payload for ordinary "no data" conditions instead of an error, and may
// self-report a confidence value in [0,1].
package source

import (
	"context"
	"time"
)

// Type classifies what kind of information a source provides.
type Type string

// Known source types. The zero value is not valid.
const (
	TypeProject   Type = "project"
	TypeKnowledge Type = "knowledge"
	TypePersonal  Type = "personal"
	TypeExternal  Type = "external"
)

// Valid reports whether t is a known source type.
func (t Type) Valid() bool {
	switch t {
	case TypeProject, TypeKnowledge, TypePersonal, TypeExternal:
		return true
	}
	return false
}

// Request is the per-call input handed to every source unchanged.
type Request struct {
	// Query is the free-text query about the user's current work.
	Query string

	// RequestType hints what the caller is doing ("urgent", "analysis", ...).
	// Sources may use it to scope their lookup; most ignore it.
	RequestType string

	// CallerContext is an opaque map passed through from the calling layer.
	CallerContext map[string]any
}

// Payload is the minimal shape every source result must carry. Extra is an
// open extension map so individual source types can attach arbitrary fields
// without weakening the contract.
type Payload struct {
	// Content is the merged-in text fragment.
	Content string `json:"content"`

	// Confidence is the source's self-reported confidence in [0,1].
	// Zero means the source did not report one.
	Confidence float64 `json:"confidence,omitempty"`

	// Tags label the content for recommendation generation.
	Tags []string `json:"tags,omitempty"`

	// Extra carries source-specific fields.
	Extra map[string]any `json:"extra,omitempty"`
}

// Status is the outcome of one source invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// Result is the per-source outcome of one orchestrated fetch.
type Result struct {
	SourceID string        `json:"source_id"`
	Status   Status        `json:"status"`
	Payload  *Payload      `json:"payload,omitempty"`
	Latency  time.Duration `json:"latency"`

	// Err retains the triggering message for diagnostics when Status is
	// StatusError. Never surfaced to the caller as a request failure.
	Err string `json:"error,omitempty"`
}

// Source is a uniform wrapper around one information provider.
//
// Fetch must honor ctx cancellation: when the orchestrator's batch ceiling
// passes, the context is cancelled and the eventual return value (if any) is
// discarded. Static metadata (ID, Type, Priority) is fixed for the lifetime
// of the source.
type Source interface {
	// ID returns the unique, stable identifier of this source.
	ID() string

	// Type returns the kind of information this source provides.
	Type() Type

	// Priority is the declared selection priority; higher is preferred
	// when reliability ties.
	Priority() int

	// Fetch retrieves content relevant to the request.
	Fetch(ctx context.Context, req *Request) (*Payload, error)
}

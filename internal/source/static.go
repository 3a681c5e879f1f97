package source

import "context"

// Static is a fixed-payload source. It is used to wire small, always-on
// providers (pinned project notes, onboarding hints) and as a test double.
type Static struct {
	id       string
	typ      Type
	priority int
	payload  *Payload
}

// NewStatic creates a source that returns the same payload on every fetch.
func NewStatic(id string, typ Type, priority int, payload *Payload) *Static {
	return &Static{
		id:       id,
		typ:      typ,
		priority: priority,
		payload:  payload,
	}
}

func (s *Static) ID() string    { return s.id }
func (s *Static) Type() Type    { return s.typ }
func (s *Static) Priority() int { return s.priority }

// Fetch returns the fixed payload, or an empty payload when none was set.
func (s *Static) Fetch(ctx context.Context, req *Request) (*Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.payload == nil {
		return &Payload{}, nil
	}
	return s.payload, nil
}

// Func adapts a plain function to the Source interface.
type Func struct {
	SourceID       string
	SourceType     Type
	SourcePriority int
	FetchFunc      func(ctx context.Context, req *Request) (*Payload, error)
}

func (f *Func) ID() string    { return f.SourceID }
func (f *Func) Type() Type    { return f.SourceType }
func (f *Func) Priority() int { return f.SourcePriority }

func (f *Func) Fetch(ctx context.Context, req *Request) (*Payload, error) {
	return f.FetchFunc(ctx, req)
}

package strategy

import (
	"fmt"
	"sync"
)

// requestTypeDefaults maps request-type hints to strategy names.
var requestTypeDefaults = map[string]string{
	"urgent":      Immediate,
	"interactive": Immediate,
	"analysis":    Comprehensive,
	"research":    Comprehensive,
}

// Selector maps a request's declared urgency/type to a strategy. Selection
// is a pure lookup with no side effects; the only failure mode is an unknown
// explicit strategy name.
//
// The strategy set can be swapped atomically via Update, which the config
// hot-reload path uses. Individual Strategy values are never mutated.
type Selector struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewSelector creates a selector over the given strategy set. All three
// built-in names must be present so request-type mapping always resolves.
func NewSelector(strategies []Strategy) (*Selector, error) {
	s := &Selector{}
	if err := s.Update(strategies); err != nil {
		return nil, err
	}
	return s, nil
}

// Update atomically replaces the strategy set after validating it.
func (s *Selector) Update(strategies []Strategy) error {
	byName := make(map[string]Strategy, len(strategies))
	for _, st := range strategies {
		if err := st.Validate(); err != nil {
			return err
		}
		byName[st.Name] = st
	}
	for _, required := range []string{Immediate, Comprehensive, Predictive} {
		if _, ok := byName[required]; !ok {
			return fmt.Errorf("strategy set is missing %q", required)
		}
	}

	s.mu.Lock()
	s.strategies = byName
	s.mu.Unlock()
	return nil
}

// Select returns the strategy for a request. An explicit strategy name wins;
// otherwise the request type is mapped to a default (predictive when unset or
// unknown).
func (s *Selector) Select(requestType, explicit string) (Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if explicit != "" {
		st, ok := s.strategies[explicit]
		if !ok {
			return Strategy{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, explicit)
		}
		return st, nil
	}

	name, ok := requestTypeDefaults[requestType]
	if !ok {
		name = Predictive
	}
	return s.strategies[name], nil
}

// Get returns a registered strategy by name.
func (s *Selector) Get(name string) (Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.strategies[name]
	if !ok {
		return Strategy{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return st, nil
}

// Names returns the registered strategy names.
func (s *Selector) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.strategies))
	for name := range s.strategies {
		names = append(names, name)
	}
	return names
}

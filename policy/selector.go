package policy

import (
	"log"
	"sync"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

// Selector routes decisions to the model policy while it is available and
// not frozen, and to the rule based fallback otherwise. The self healer
// freezes the model when the drift monitor reports policy degradation.
type Selector struct {
	model    DecisionPolicy
	fallback DecisionPolicy

	mu     sync.RWMutex
	frozen bool
}

// NewSelector builds a selector. A nil model means the artifact was not
// available at startup; the fallback serves everything.
func NewSelector(model, fallback DecisionPolicy) *Selector {
	if model == nil {
		log.Printf("[WARN] no policy artifact loaded, serving rule based fallback only")
	}
	return &Selector{model: model, fallback: fallback}
}

func (s *Selector) active() DecisionPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil || s.frozen {
		return s.fallback
	}
	return s.model
}

func (s *Selector) Decide(state domain.StateVector) domain.Action {
	return s.active().Decide(state)
}

func (s *Selector) Version() string {
	return s.active().Version()
}

// Freeze pins decisions to the fallback policy until Unfreeze.
func (s *Selector) Freeze(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.frozen {
		log.Printf("[WARN] policy frozen, falling back to rules: %s", reason)
	}
	s.frozen = true
}

// Unfreeze re-enables the model policy. Operator action only.
func (s *Selector) Unfreeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		log.Printf("policy unfrozen")
	}
	s.frozen = false
}

// Frozen reports whether the model policy is currently frozen.
func (s *Selector) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

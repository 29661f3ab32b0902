// Package mitigation applies decided actions as concrete local policy knobs:
// a minimum fee floor, a broadcast delay and an overall mode. Nothing here
// touches transaction validity or consensus.
package mitigation

import (
	"sync"
	"time"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

// View is a read consistent copy of the mitigation state, handed to the
// transaction forwarding path and the status surface.
type View struct {
	Mode     domain.MitigationMode `json:"mode"`
	MinFee   float64               `json:"minFee"`
	Delay    time.Duration         `json:"-"`
	DelayMs  int64                 `json:"delayMs"`
	LastSeen domain.Action         `json:"lastAction"`
}

// State is the process wide mitigation state. Single writer (the executor),
// many readers. Constructed once in main and injected; only the executor
// receives the mutable handle.
type State struct {
	mu         sync.RWMutex
	mode       domain.MitigationMode
	minFee     float64
	delay      time.Duration
	lastAction domain.Action
}

func NewState() *State {
	return &State{mode: domain.ModeNormal}
}

// View returns a copy of the current knobs.
func (s *State) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		Mode:     s.mode,
		MinFee:   s.minFee,
		Delay:    s.delay,
		DelayMs:  s.delay.Milliseconds(),
		LastSeen: s.lastAction,
	}
}

// ShouldAdmit is the admission gate for the forwarding collaborator: whether
// to admit the transaction, and with how much broadcast delay.
func (s *State) ShouldAdmit(feeRate, spamScore float64) (bool, time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.mode == domain.ModeNormal {
		return true, 0
	}
	if feeRate < s.minFee {
		return false, 0
	}
	if spamScore > 0.5 && s.delay > 0 {
		return true, s.delay
	}
	return true, 0
}

func (s *State) set(mode domain.MitigationMode, minFee float64, delay time.Duration, action domain.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.minFee = minFee
	s.delay = delay
	s.lastAction = action
}

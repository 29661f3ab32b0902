// Package policy maps state vectors to mitigation actions. Two variants
// implement the same contract: a frozen model artifact and a rule based
// fallback. Both are deterministic for a fixed input, which is what makes
// audit replay and regression testing possible.
package policy

import "github.com/nodescrypt/mempool-sentinel/domain"

// DecisionPolicy selects one mitigation action per tick. Implementations
// must be deterministic: decide(s) == decide(s) for any fixed s.
type DecisionPolicy interface {
	Decide(state domain.StateVector) domain.Action
	Version() string
}

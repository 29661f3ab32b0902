package mitigation

import (
	"time"

	"github.com/pkg/errors"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

// Config holds the action table tunables.
type Config struct {
	FeeStep          float64
	DefensiveFeeStep float64
	SpamDelay        time.Duration
	DefensiveDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		FeeStep:          10,
		DefensiveFeeStep: 25,
		SpamDelay:        500 * time.Millisecond,
		DefensiveDelay:   time.Second,
	}
}

func (c Config) Validate() error {
	if c.FeeStep < 0 || c.DefensiveFeeStep < 0 {
		return errors.New("fee steps must not be negative")
	}
	if c.SpamDelay < 0 || c.DefensiveDelay < 0 {
		return errors.New("delays must not be negative")
	}
	return nil
}

// Executor is the only component holding a mutable handle on the mitigation
// state. Applying the same action twice in a row is idempotent, and a
// DO_NOTHING always restores the NORMAL baseline in full.
type Executor struct {
	cfg   Config
	state *State
}

func NewExecutor(cfg Config, state *State) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating executor config")
	}
	return &Executor{cfg: cfg, state: state}, nil
}

// Apply executes the action against the state and returns the resulting view.
func (e *Executor) Apply(action domain.Action) View {
	current := e.state.View()
	if action == current.LastSeen {
		return current
	}

	switch action {
	case domain.ActionDoNothing:
		e.state.set(domain.ModeNormal, 0, 0, action)
	case domain.ActionRaiseFeeThreshold:
		e.state.set(domain.ModeFeeFilter, current.MinFee+e.cfg.FeeStep, 0, action)
	case domain.ActionDeprioritizeSpam:
		e.state.set(domain.ModeSpamDeprioritization, current.MinFee, e.cfg.SpamDelay, action)
	case domain.ActionDefensiveMode:
		e.state.set(domain.ModeDefensive, current.MinFee+e.cfg.DefensiveFeeStep, e.cfg.DefensiveDelay, action)
	default:
		// unknown ordinals leave the knobs untouched
		return current
	}
	return e.state.View()
}

// Reset restores the NORMAL baseline regardless of history.
func (e *Executor) Reset() View {
	e.state.set(domain.ModeNormal, 0, 0, domain.ActionDoNothing)
	return e.state.View()
}

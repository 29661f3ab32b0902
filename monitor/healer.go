package monitor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

// ThresholdAdjuster lets the healer tune the classifier sensitivity.
type ThresholdAdjuster interface {
	SpamThreshold() float64
	SetSpamThreshold(threshold float64)
}

// PolicyFreezer lets the healer pin the decision policy to the rule-based
// fallback.
type PolicyFreezer interface {
	Freeze(reason string)
	Frozen() bool
}

// HealingEvent is one applied remediation, kept for the status surface.
type HealingEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Alert     Alert     `json:"alert"`
	Remedy    string    `json:"remedy"`
}

const (
	thresholdStep     = 0.05
	maxHealingHistory = 50
)

// Healer turns drift alerts into remediations. It runs after the policy has
// decided and may only clamp the output, never mutate the policy mid-cycle.
type Healer struct {
	adjuster ThresholdAdjuster
	freezer  PolicyFreezer
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	history []HealingEvent
}

func NewHealer(adjuster ThresholdAdjuster, freezer PolicyFreezer, logger *zap.SugaredLogger) *Healer {
	return &Healer{
		adjuster: adjuster,
		freezer:  freezer,
		logger:   logger,
	}
}

// Apply executes the remediation for every fired alert and returns the final
// action with the cause that explains it. Forced overrides win over the
// decided action; among multiple alerts the most severe one names the cause.
func (h *Healer) Apply(alerts []Alert, decided domain.Action) (domain.Action, domain.Cause) {
	if len(alerts) == 0 {
		return decided, domain.CausePolicy
	}

	action := decided
	cause := domain.CausePolicy

	for _, alert := range alerts {
		switch alert.Kind {
		case AlertHighSpamEnv:
			action = domain.ActionDefensiveMode
			if cause != domain.CauseCriticalRisk {
				cause = domain.CauseHighSpamEnv
			}
			h.record(alert, "forced DEFENSIVE_MODE")
		case AlertCriticalRisk:
			action = domain.ActionDefensiveMode
			cause = domain.CauseCriticalRisk
			h.record(alert, "forced DEFENSIVE_MODE")
		case AlertModelTooAggressive:
			before := h.adjuster.SpamThreshold()
			h.adjuster.SetSpamThreshold(before - thresholdStep)
			if cause == domain.CausePolicy {
				cause = domain.CauseModelTooAggressive
			}
			h.record(alert, "lowered classifier threshold")
			h.logger.Warnf("model too aggressive, spam threshold [%.2f] -> [%.2f]",
				before, h.adjuster.SpamThreshold())
		case AlertPolicyDegrading:
			if !h.freezer.Frozen() {
				h.freezer.Freeze(string(alert.Kind))
				h.logger.Warnf("policy degrading, frozen to rule-based fallback: %s", alert)
			}
			if cause == domain.CausePolicy || cause == domain.CauseModelTooAggressive {
				cause = domain.CausePolicyDegrading
			}
			h.record(alert, "froze model policy")
		}
	}

	if action != decided {
		h.logger.Warnf("healer override [%s] -> [%s] cause [%s]", decided, action, cause)
	}
	return action, cause
}

func (h *Healer) record(alert Alert, remedy string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.history = append(h.history, HealingEvent{
		Timestamp: time.Now().UTC(),
		Alert:     alert,
		Remedy:    remedy,
	})
	if len(h.history) > maxHealingHistory {
		h.history = h.history[len(h.history)-maxHealingHistory:]
	}
}

// History returns a copy of the recorded healing events, newest last.
func (h *Healer) History() []HealingEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]HealingEvent, len(h.history))
	copy(out, h.history)
	return out
}

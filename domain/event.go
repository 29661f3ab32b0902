package domain

import "time"

// Cause explains why a decision event carries the action it does. Everything
// other than CausePolicy marks an override or monitor-only substitution, so
// audit trails show why an action deviated from the raw policy output.
type Cause string

const (
	CausePolicy             Cause = "POLICY"
	CauseMonitorOnly        Cause = "MONITOR_ONLY"
	CauseInvariantViolation Cause = "INVARIANT_VIOLATION"
	CauseHighSpamEnv        Cause = "HIGH_SPAM_ENV"
	CauseModelTooAggressive Cause = "MODEL_TOO_AGGRESSIVE"
	CausePolicyDegrading    Cause = "POLICY_DEGRADING"
	CauseCriticalRisk       Cause = "CRITICAL_RISK"
)

// DecisionEvent is one policy invocation result. Immutable once recorded.
// Ordered by Sequence, not by wall clock, so audit replay reconstructs what
// the policy saw in order.
type DecisionEvent struct {
	Sequence     uint64      `json:"sequence"`
	State        StateVector `json:"state"`
	Action       Action      `json:"action"`
	RiskScore    uint8       `json:"riskScore"`
	ModelVersion string      `json:"modelVersion"`
	Cause        Cause       `json:"cause"`
	IncidentID   string      `json:"incidentId"`
	Timestamp    time.Time   `json:"timestamp"`
}

package monitor

import (
	"fmt"

	"github.com/pkg/errors"
)

type AlertKind string

const (
	AlertHighSpamEnv        AlertKind = "HIGH_SPAM_ENV"
	AlertModelTooAggressive AlertKind = "MODEL_TOO_AGGRESSIVE"
	AlertPolicyDegrading    AlertKind = "POLICY_DEGRADING"
	AlertCriticalRisk       AlertKind = "CRITICAL_RISK"
)

// Alert is one fired drift trigger.
type Alert struct {
	Kind      AlertKind `json:"kind"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
}

func (a Alert) String() string {
	return fmt.Sprintf("%s (value %.4f, threshold %.4f)", a.Kind, a.Value, a.Threshold)
}

// Thresholds holds the drift trigger table. Values are configuration, not
// contracts.
type Thresholds struct {
	SpamRatio     float64
	FalsePositive float64
	RewardProxy   float64
	RiskScore     float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		SpamRatio:     0.6,
		FalsePositive: 0.25,
		RewardProxy:   -50,
		RiskScore:     90,
	}
}

func (t Thresholds) Validate() error {
	if t.SpamRatio <= 0 || t.SpamRatio > 1 {
		return errors.Errorf("spam ratio threshold [%f] must be in (0, 1]", t.SpamRatio)
	}
	if t.FalsePositive <= 0 || t.FalsePositive > 1 {
		return errors.Errorf("false positive threshold [%f] must be in (0, 1]", t.FalsePositive)
	}
	if t.RewardProxy >= 0 {
		return errors.Errorf("reward proxy threshold [%f] must be negative", t.RewardProxy)
	}
	if t.RiskScore <= 0 || t.RiskScore > 100 {
		return errors.Errorf("risk score threshold [%f] must be in (0, 100]", t.RiskScore)
	}
	return nil
}

// DriftDetector evaluates the trigger table against a window summary.
type DriftDetector struct {
	thresholds Thresholds
}

func NewDriftDetector(thresholds Thresholds) (*DriftDetector, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating drift thresholds")
	}
	return &DriftDetector{thresholds: thresholds}, nil
}

// Detect returns every fired trigger. The critical risk trigger fires on the
// latest cycle alone so one hostile cycle is caught before the rolling
// average catches up.
func (d *DriftDetector) Detect(summary Summary) []Alert {
	if summary.Cycles == 0 {
		return nil
	}

	var alerts []Alert
	if summary.AvgSpamRatio > d.thresholds.SpamRatio {
		alerts = append(alerts, Alert{
			Kind:      AlertHighSpamEnv,
			Value:     summary.AvgSpamRatio,
			Threshold: d.thresholds.SpamRatio,
		})
	}
	if summary.AvgFalsePositive > d.thresholds.FalsePositive {
		alerts = append(alerts, Alert{
			Kind:      AlertModelTooAggressive,
			Value:     summary.AvgFalsePositive,
			Threshold: d.thresholds.FalsePositive,
		})
	}
	if summary.AvgRewardProxy < d.thresholds.RewardProxy {
		alerts = append(alerts, Alert{
			Kind:      AlertPolicyDegrading,
			Value:     summary.AvgRewardProxy,
			Threshold: d.thresholds.RewardProxy,
		})
	}
	if summary.LatestRiskScore > d.thresholds.RiskScore {
		alerts = append(alerts, Alert{
			Kind:      AlertCriticalRisk,
			Value:     summary.LatestRiskScore,
			Threshold: d.thresholds.RiskScore,
		})
	}
	return alerts
}

package policy

import (
	"github.com/pkg/errors"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

const rulesVersion = "rules-v1"

// RuleConfig holds the fallback policy thresholds. Illustrative defaults,
// tunable via configuration.
type RuleConfig struct {
	DefensiveSpamRatio    float64
	DefensiveSpamScore    float64
	DeprioritizeSpamRatio float64
	DeprioritizeSpamScore float64
	HighCongestion        float64
	HighTxCount           float64
	LowAvgFeeRate         float64
}

func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		DefensiveSpamRatio:    0.6,
		DefensiveSpamScore:    0.8,
		DeprioritizeSpamRatio: 0.4,
		DeprioritizeSpamScore: 0.6,
		HighCongestion:        500,
		HighTxCount:           1000,
		LowAvgFeeRate:         1,
	}
}

func (c RuleConfig) Validate() error {
	if c.DefensiveSpamRatio <= 0 || c.DefensiveSpamRatio > 1 {
		return errors.Errorf("defensive spam ratio [%f] outside (0,1]", c.DefensiveSpamRatio)
	}
	if c.DeprioritizeSpamRatio <= 0 || c.DeprioritizeSpamRatio > c.DefensiveSpamRatio {
		return errors.New("deprioritize spam ratio must be positive and below the defensive ratio")
	}
	if c.HighCongestion <= 0 {
		return errors.New("high congestion threshold must be positive")
	}
	return nil
}

// RulePolicy is the rule based fallback. It must always be available so
// model unavailability never stalls mitigation decisions.
type RulePolicy struct {
	cfg RuleConfig
}

func NewRulePolicy(cfg RuleConfig) (*RulePolicy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating rule policy config")
	}
	return &RulePolicy{cfg: cfg}, nil
}

func (p *RulePolicy) Decide(state domain.StateVector) domain.Action {
	hostile := state.SpamTxRatio >= p.cfg.DefensiveSpamRatio &&
		(state.CongestionScore >= p.cfg.HighCongestion || state.AvgSpamScore >= p.cfg.DefensiveSpamScore)
	if hostile {
		return domain.ActionDefensiveMode
	}

	if state.SpamTxRatio >= p.cfg.DeprioritizeSpamRatio || state.AvgSpamScore >= p.cfg.DeprioritizeSpamScore {
		return domain.ActionDeprioritizeSpam
	}

	congested := state.CongestionScore >= p.cfg.HighCongestion ||
		(state.MempoolTxCount >= p.cfg.HighTxCount && state.AvgFeeRate <= p.cfg.LowAvgFeeRate)
	if congested {
		return domain.ActionRaiseFeeThreshold
	}

	return domain.ActionDoNothing
}

func (p *RulePolicy) Version() string {
	return rulesVersion
}

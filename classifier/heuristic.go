package classifier

import "github.com/nodescrypt/mempool-sentinel/domain"

// HeuristicConfig holds the fallback scoring knobs. Defaults mirror the
// inference service's own degraded path.
type HeuristicConfig struct {
	LowFeeRate    float64
	FloodTxCount  int
	NonceGapLimit int64
	HighValue     float64
	HighFeeRate   float64
}

func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		LowFeeRate:    1,
		FloodTxCount:  10,
		NonceGapLimit: 5,
		HighValue:     1,
		HighFeeRate:   100,
	}
}

// Heuristic is the deterministic classifier fallback. It is a first class
// serving path, not an afterthought: any model outage routes through here.
type Heuristic struct {
	cfg HeuristicConfig
}

func NewHeuristic(cfg HeuristicConfig) *Heuristic {
	return &Heuristic{cfg: cfg}
}

// Predict scores a feature vector without any external call.
func (h *Heuristic) Predict(fv domain.FeatureVector) domain.RiskScores {
	var spam float64
	if fv.FeeRate < h.cfg.LowFeeRate {
		spam += 0.3
	}
	if fv.SenderTxCount > h.cfg.FloodTxCount {
		spam += 0.3
	}
	if fv.NonceGap > h.cfg.NonceGapLimit {
		spam += 0.4
	}

	// The fixed feature schema carries no contract or swap flags, so the mev
	// shape is approximated from value, calldata presence and fee bidding.
	var mev float64
	if fv.NormalizedValue > h.cfg.HighValue {
		mev += 0.2
	}
	if fv.DataSize > 0 {
		mev += 0.2
	}
	if fv.FeeRate > h.cfg.HighFeeRate {
		mev += 0.4
	}

	return domain.RiskScores{Spam: clamp01(spam), Mev: clamp01(mev)}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

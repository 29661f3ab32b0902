// Package monitor tracks rolling decision quality and overrides the policy
// output when the loop drifts into a bad regime.
package monitor

import (
	"sync"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

const DefaultWindowSize = 50

// CycleStats is the per-cycle sample fed into the rolling windows.
type CycleStats struct {
	RiskScore     float64
	Action        domain.Action
	RewardProxy   float64
	FalsePositive float64
	SpamRatio     float64
}

// Summary aggregates the current windows. LatestRiskScore is the most recent
// cycle, not an average, because a critical risk spike must not be diluted by
// a calm history.
type Summary struct {
	Cycles             int
	AvgRiskScore       float64
	LatestRiskScore    float64
	AvgRewardProxy     float64
	AvgFalsePositive   float64
	AvgSpamRatio       float64
	ActionDistribution map[domain.Action]int
	RiskTrend          Trend
}

type Trend string

const (
	TrendRising  Trend = "RISING"
	TrendFalling Trend = "FALLING"
	TrendFlat    Trend = "FLAT"
)

// Collector keeps bounded rolling windows over recent cycles. All windows
// share one size so every aggregate describes the same span of history.
type Collector struct {
	mu         sync.Mutex
	windowSize int
	stats      []CycleStats
}

func NewCollector(windowSize int) *Collector {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Collector{windowSize: windowSize}
}

func (c *Collector) Update(stats CycleStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats = append(c.stats, stats)
	if len(c.stats) > c.windowSize {
		c.stats = c.stats[len(c.stats)-c.windowSize:]
	}
}

func (c *Collector) Summarize() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary := Summary{
		ActionDistribution: make(map[domain.Action]int),
		RiskTrend:          TrendFlat,
	}
	if len(c.stats) == 0 {
		return summary
	}

	var risk, reward, fp, spam float64
	for _, s := range c.stats {
		risk += s.RiskScore
		reward += s.RewardProxy
		fp += s.FalsePositive
		spam += s.SpamRatio
		summary.ActionDistribution[s.Action]++
	}

	n := float64(len(c.stats))
	summary.Cycles = len(c.stats)
	summary.AvgRiskScore = risk / n
	summary.LatestRiskScore = c.stats[len(c.stats)-1].RiskScore
	summary.AvgRewardProxy = reward / n
	summary.AvgFalsePositive = fp / n
	summary.AvgSpamRatio = spam / n
	summary.RiskTrend = c.riskTrendLocked()

	return summary
}

// riskTrendLocked compares the mean risk of the newer half of the window
// against the older half.
func (c *Collector) riskTrendLocked() Trend {
	if len(c.stats) < 4 {
		return TrendFlat
	}

	half := len(c.stats) / 2
	var older, newer float64
	for _, s := range c.stats[:half] {
		older += s.RiskScore
	}
	for _, s := range c.stats[len(c.stats)-half:] {
		newer += s.RiskScore
	}
	older /= float64(half)
	newer /= float64(half)

	const margin = 5.0
	switch {
	case newer > older+margin:
		return TrendRising
	case newer < older-margin:
		return TrendFalling
	default:
		return TrendFlat
	}
}

package domain

import "time"

// MempoolSnapshot is one aggregation tick over the current window contents.
// Congestion score and spam ratio are always recomputed in full, never
// incrementally updated.
type MempoolSnapshot struct {
	Timestamp         time.Time
	TxCount           int
	AvgFeeRate        float64
	AvgDataSize       float64
	CongestionScore   float64
	ContractCallRatio float64
	SpamTxRatio       float64
}

// StateVector is the five dimensional decision policy input. It is built
// fresh every cycle from a single snapshot plus the classifier sample.
type StateVector struct {
	MempoolTxCount  float64 `json:"mempoolTxCount"`
	AvgFeeRate      float64 `json:"avgFeeRate"`
	CongestionScore float64 `json:"congestionScore"`
	AvgSpamScore    float64 `json:"avgSpamScore"`
	SpamTxRatio     float64 `json:"spamTxRatio"`
}

// Vector returns the state in policy input order.
func (s StateVector) Vector() [5]float64 {
	return [5]float64{
		s.MempoolTxCount,
		s.AvgFeeRate,
		s.CongestionScore,
		s.AvgSpamScore,
		s.SpamTxRatio,
	}
}

package domain

import "time"

// TransactionObservation is a single observed pending transaction.
// Immutable after creation. The mempool aggregator owns the only retained
// copies; everything downstream works on values handed out by it.
type TransactionObservation struct {
	Hash            string
	Sender          string
	Recipient       string
	Value           float64
	GasPrice        float64
	DataSize        int
	Nonce           uint64
	FirstSeen       time.Time
	ToIsContract    bool
	IsTokenTransfer bool
	Blacklisted     bool
}

// FeatureVector is derived per observation from the observation plus
// aggregator context. Field order is fixed; it is the wire order for the
// classifier boundary.
type FeatureVector struct {
	FeeRate         float64
	NormalizedValue float64
	DataSize        int
	NonceGap        int64
	SenderTxCount   int
	SenderAvgFee    float64
}

// Ordered returns the features in their fixed serving order.
func (f FeatureVector) Ordered() [6]float64 {
	return [6]float64{
		f.FeeRate,
		f.NormalizedValue,
		float64(f.DataSize),
		float64(f.NonceGap),
		float64(f.SenderTxCount),
		f.SenderAvgFee,
	}
}

// RiskScores is the classifier output. Both values are in [0,1].
type RiskScores struct {
	Spam float64
	Mev  float64
}

// Package features turns raw transaction observations into the fixed order
// numeric vectors the risk classifier consumes. Extraction is a pure function
// of the observation and the aggregator context so that training and serving
// compute identical features.
package features

import (
	"math"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

// Context is the read-only aggregator view extraction needs.
type Context interface {
	PerSenderStats(sender string) (txCount int, avgFee float64)
	LastKnownNonce(sender string) (uint64, bool)
}

// Extract never fails: malformed numeric fields default to zero and the call
// still returns a valid, if low signal, feature vector.
func Extract(obs domain.TransactionObservation, ctx Context) domain.FeatureVector {
	dataSize := max(obs.DataSize, 0)

	// fixed denominator of 1 for empty payloads, no division by zero
	feeRate := sanitize(obs.GasPrice) / float64(max(dataSize, 1))

	txCount, avgFee := ctx.PerSenderStats(obs.Sender)
	if txCount == 0 {
		avgFee = feeRate
	}

	// Gap defaults to zero when the sender has never been seen. This is a
	// deliberate interpretation: first sighting is treated as in sequence.
	var nonceGap int64
	if lastNonce, ok := ctx.LastKnownNonce(obs.Sender); ok {
		nonceGap = int64(obs.Nonce) - int64(lastNonce)
	}

	return domain.FeatureVector{
		FeeRate:         feeRate,
		NormalizedValue: sanitize(obs.Value),
		DataSize:        dataSize,
		NonceGap:        nonceGap,
		SenderTxCount:   txCount,
		SenderAvgFee:    sanitize(avgFee),
	}
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

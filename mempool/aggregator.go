package mempool

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

// Config holds the aggregator tunables. The window bound is configuration,
// not a hard-coded constant.
type Config struct {
	// WindowSpan is the retention horizon for observations.
	WindowSpan time.Duration
	// MaxEntries caps the window size independently of the time horizon.
	MaxEntries int
	// SpamThreshold classifies a window entry as spam when its effective
	// spam score reaches the threshold.
	SpamThreshold float64
	// CongestionScale scales the congestion score.
	CongestionScale float64
	// NonceCacheSize bounds the per-sender last known nonce cache.
	NonceCacheSize int
}

// Validate fails fast on configuration that would break the window.
func (c Config) Validate() error {
	if c.WindowSpan <= 0 {
		return errors.New("window span must be positive")
	}
	if c.MaxEntries <= 0 {
		return errors.New("max entries must be positive")
	}
	if c.SpamThreshold <= 0 || c.SpamThreshold > 1 {
		return errors.Errorf("spam threshold [%f] outside (0,1]", c.SpamThreshold)
	}
	if c.CongestionScale <= 0 {
		return errors.New("congestion scale must be positive")
	}
	if c.NonceCacheSize <= 0 {
		return errors.New("nonce cache size must be positive")
	}
	return nil
}

type entry struct {
	obs       domain.TransactionObservation
	feeRate   float64
	spamScore float64
}

// Aggregator owns the sliding window of recent transaction observations and
// derives mempool level statistics from it. Record runs on the high frequency
// ingestion path, Snapshot on the decision cycle path; a single lock keeps
// readers from observing a write in progress.
type Aggregator struct {
	cfg Config

	mu      sync.RWMutex
	entries []entry

	// lastNonce survives window eviction so nonce gaps stay meaningful for
	// senders seen longer ago than the window span. Bounded by LRU.
	lastNonce *lru.Cache
}

func NewAggregator(cfg Config) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating aggregator config")
	}
	cache, err := lru.New(cfg.NonceCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating nonce cache")
	}
	return &Aggregator{
		cfg:       cfg,
		lastNonce: cache,
	}, nil
}

// Record adds an observation to the window together with the spam score the
// ingestion path computed for it. Older entries beyond the horizon or the
// count cap are evicted.
func (a *Aggregator) Record(obs domain.TransactionObservation, spamScore float64) {
	feeRate := obs.GasPrice / float64(max(obs.DataSize, 1))

	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = append(a.entries, entry{obs: obs, feeRate: feeRate, spamScore: clamp01(spamScore)})
	a.evictLocked(obs.FirstSeen)

	if prev, ok := a.lastNonce.Get(obs.Sender); !ok || obs.Nonce > prev.(uint64) {
		a.lastNonce.Add(obs.Sender, obs.Nonce)
	}
}

func (a *Aggregator) evictLocked(now time.Time) {
	horizon := now.Add(-a.cfg.WindowSpan)
	keepFrom := 0
	for keepFrom < len(a.entries) && a.entries[keepFrom].obs.FirstSeen.Before(horizon) {
		keepFrom++
	}
	if overflow := len(a.entries) - keepFrom - a.cfg.MaxEntries; overflow > 0 {
		keepFrom += overflow
	}
	if keepFrom > 0 {
		a.entries = append([]entry(nil), a.entries[keepFrom:]...)
	}
}

// Snapshot recomputes all window statistics from the current contents.
// Entries past the horizon are evicted first, so a quiet ingest stream does
// not serve stale statistics. An empty window yields a recognizable zero
// state, never a failure.
func (a *Aggregator) Snapshot() domain.MempoolSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.evictLocked(time.Now())

	snapshot := domain.MempoolSnapshot{Timestamp: time.Now().UTC()}
	count := len(a.entries)
	if count == 0 {
		return snapshot
	}

	var feeSum, sizeSum float64
	var contractCalls int
	for _, e := range a.entries {
		feeSum += e.feeRate
		sizeSum += float64(e.obs.DataSize)
		if e.obs.ToIsContract {
			contractCalls++
		}
	}
	avgFee := feeSum / float64(count)

	var spamCount int
	for _, e := range a.entries {
		if effectiveSpamScore(e, avgFee) >= a.cfg.SpamThreshold {
			spamCount++
		}
	}

	snapshot.TxCount = count
	snapshot.AvgFeeRate = avgFee
	snapshot.AvgDataSize = sizeSum / float64(count)
	snapshot.CongestionScore = a.cfg.CongestionScale * float64(count) / (1 + avgFee)
	snapshot.ContractCallRatio = float64(contractCalls) / float64(count)
	snapshot.SpamTxRatio = float64(spamCount) / float64(count)
	return snapshot
}

// effectiveSpamScore combines the ingest-time score with a relative low fee
// signal: an entry priced far below the window average looks like flooding
// even if it scored low in isolation.
func effectiveSpamScore(e entry, avgFee float64) float64 {
	if avgFee <= 0 {
		return e.spamScore
	}
	lowFee := clamp01(1 - e.feeRate/avgFee)
	return max(e.spamScore, lowFee)
}

// PerSenderStats returns the count and average fee rate of the sender's
// observations currently in the window. Expired entries are evicted first.
func (a *Aggregator) PerSenderStats(sender string) (txCount int, avgFee float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.evictLocked(time.Now())

	var feeSum float64
	for _, e := range a.entries {
		if e.obs.Sender == sender {
			txCount++
			feeSum += e.feeRate
		}
	}
	if txCount == 0 {
		return 0, 0
	}
	return txCount, feeSum / float64(txCount)
}

// LastKnownNonce returns the highest nonce seen for the sender, if any.
func (a *Aggregator) LastKnownNonce(sender string) (uint64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if nonce, ok := a.lastNonce.Get(sender); ok {
		return nonce.(uint64), true
	}
	return 0, false
}

// Recent returns read-only copies of up to n newest observations still inside
// the window, newest last.
func (a *Aggregator) Recent(n int) []domain.TransactionObservation {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.evictLocked(time.Now())

	if n <= 0 || len(a.entries) == 0 {
		return nil
	}
	from := max(len(a.entries)-n, 0)
	out := make([]domain.TransactionObservation, 0, len(a.entries)-from)
	for _, e := range a.entries[from:] {
		out = append(out, e.obs)
	}
	return out
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

package classifier

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

// RemoteClassifier is the out of process model boundary.
type RemoteClassifier interface {
	Predict(ctx context.Context, fv domain.FeatureVector) (domain.RiskScores, error)
	Health(ctx context.Context) error
}

// FallbackObserver is notified whenever the heuristic path serves a call.
type FallbackObserver interface {
	IncClassifierFallback()
}

// Result is one scored feature vector. Baseline always carries the heuristic
// scores so callers can measure model/heuristic disagreement.
type Result struct {
	Scores   domain.RiskScores
	Baseline domain.RiskScores
	Fallback bool
}

// Scorer combines the remote model with the deterministic heuristic. Every
// remote call is bounded by the configured timeout; on timeout, failure or
// out of range output the heuristic result is served instead so that predict
// always yields valid scores.
type Scorer struct {
	remote    RemoteClassifier
	heuristic *Heuristic
	timeout   time.Duration
	observer  FallbackObserver

	mu            sync.RWMutex
	spamThreshold float64
}

func NewScorer(remote RemoteClassifier, heuristic *Heuristic, timeout time.Duration, spamThreshold float64, observer FallbackObserver) (*Scorer, error) {
	if timeout <= 0 {
		return nil, errors.New("classifier timeout must be positive")
	}
	if spamThreshold <= 0 || spamThreshold > 1 {
		return nil, errors.Errorf("spam threshold [%f] outside (0,1]", spamThreshold)
	}
	return &Scorer{
		remote:        remote,
		heuristic:     heuristic,
		timeout:       timeout,
		observer:      observer,
		spamThreshold: spamThreshold,
	}, nil
}

// Predict scores one feature vector. It never fails.
func (s *Scorer) Predict(ctx context.Context, fv domain.FeatureVector) Result {
	baseline := s.heuristic.Predict(fv)
	result := Result{Scores: baseline, Baseline: baseline, Fallback: true}

	if s.remote == nil {
		s.countFallback()
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	scores, err := s.remote.Predict(callCtx, fv)
	if err != nil {
		log.Printf("[WARN] classifier unavailable, serving heuristic scores: %v", err)
		s.countFallback()
		return result
	}

	if err := validateScores(scores); err != nil {
		log.Printf("[ERROR] classifier returned invalid scores spam [%f] mev [%f]: %v", scores.Spam, scores.Mev, err)
		s.countFallback()
		return result
	}

	result.Scores = domain.RiskScores{Spam: clamp01(scores.Spam), Mev: clamp01(scores.Mev)}
	result.Fallback = false
	return result
}

// Healthy reports whether the remote model answers its health check.
func (s *Scorer) Healthy(ctx context.Context) bool {
	if s.remote == nil {
		return false
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.remote.Health(callCtx) == nil
}

// SpamThreshold returns the score above which a transaction counts as spam.
func (s *Scorer) SpamThreshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spamThreshold
}

// SetSpamThreshold adjusts the spam threshold, clamped to [0.3, 0.95] so the
// self healer cannot push classification into a degenerate regime.
func (s *Scorer) SetSpamThreshold(threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spamThreshold = math.Min(math.Max(threshold, 0.3), 0.95)
}

func (s *Scorer) countFallback() {
	if s.observer != nil {
		s.observer.IncClassifierFallback()
	}
}

func validateScores(scores domain.RiskScores) error {
	for _, v := range []float64{scores.Spam, scores.Mev} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
			return domain.ErrScoreOutOfRange
		}
	}
	return nil
}

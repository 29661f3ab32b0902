// Package loop runs the fixed interval decision cycle over the mempool
// state.
package loop

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nodescrypt/mempool-sentinel/audit"
	"github.com/nodescrypt/mempool-sentinel/classifier"
	"github.com/nodescrypt/mempool-sentinel/domain"
	"github.com/nodescrypt/mempool-sentinel/features"
	"github.com/nodescrypt/mempool-sentinel/metrics"
	"github.com/nodescrypt/mempool-sentinel/mitigation"
	"github.com/nodescrypt/mempool-sentinel/monitor"
)

type Mempool interface {
	features.Context
	Snapshot() domain.MempoolSnapshot
	Recent(n int) []domain.TransactionObservation
}

type Scorer interface {
	Predict(ctx context.Context, fv domain.FeatureVector) classifier.Result
	SpamThreshold() float64
}

type Policy interface {
	Decide(state domain.StateVector) domain.Action
	Version() string
}

type Collector interface {
	Update(stats monitor.CycleStats)
	Summarize() monitor.Summary
}

type Detector interface {
	Detect(summary monitor.Summary) []monitor.Alert
}

type Healer interface {
	Apply(alerts []monitor.Alert, decided domain.Action) (domain.Action, domain.Cause)
}

type Executor interface {
	Apply(action domain.Action) mitigation.View
}

type SequenceStore interface {
	NextSequence() (uint64, error)
}

type IncidentRecorder interface {
	Record(sequence uint64, incident audit.Incident) error
}

// EventSink receives finished decision events. Publishing is asynchronous
// from the cycle's perspective.
type EventSink interface {
	PublishDecisionEvents(ctx context.Context, events []domain.DecisionEvent) error
}

type Config struct {
	CycleInterval       time.Duration
	SampleSize          int
	RiskCongestionScale float64
}

func DefaultConfig() Config {
	return Config{
		CycleInterval:       2 * time.Second,
		SampleSize:          32,
		RiskCongestionScale: 1e8,
	}
}

func (c Config) Validate() error {
	if c.CycleInterval <= 0 {
		return errors.Errorf("cycle interval [%s] must be positive", c.CycleInterval)
	}
	if c.SampleSize <= 0 {
		return errors.Errorf("sample size [%d] must be positive", c.SampleSize)
	}
	if c.RiskCongestionScale <= 0 {
		return errors.Errorf("risk congestion scale [%f] must be positive", c.RiskCongestionScale)
	}
	return nil
}

// Runner executes decision cycles. One cycle at a time: if a tick fires while
// a cycle is still in flight the tick is skipped, cycles never stack.
type Runner struct {
	cfg       Config
	mempool   Mempool
	scorer    Scorer
	policy    Policy
	collector Collector
	detector  Detector
	healer    Healer
	executor  Executor
	store     SequenceStore
	recorder  IncidentRecorder
	sinks     []EventSink
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger

	inFlight atomic.Bool
	disabled atomic.Bool
}

func NewRunner(cfg Config, mempool Mempool, scorer Scorer, policy Policy,
	collector Collector, detector Detector, healer Healer, executor Executor,
	store SequenceStore, recorder IncidentRecorder, sinks []EventSink,
	m *metrics.Metrics, logger *zap.SugaredLogger) (*Runner, error) {

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating loop config")
	}
	return &Runner{
		cfg:       cfg,
		mempool:   mempool,
		scorer:    scorer,
		policy:    policy,
		collector: collector,
		detector:  detector,
		healer:    healer,
		executor:  executor,
		store:     store,
		recorder:  recorder,
		sinks:     sinks,
		metrics:   m,
		logger:    logger,
	}, nil
}

// SetDisabled toggles monitor only mode. While disabled every cycle decides
// DO_NOTHING regardless of inputs but keeps observing and recording.
func (r *Runner) SetDisabled(disabled bool) {
	r.disabled.Store(disabled)
	if disabled {
		r.logger.Warn("mitigation disabled, running monitor only")
	} else {
		r.logger.Info("mitigation enabled")
	}
}

func (r *Runner) Disabled() bool {
	return r.disabled.Load()
}

func (r *Runner) Start(ctx context.Context) {
	// run one initial cycle, so we do not wait until first tick
	r.runCycle(ctx)

	ticker := time.NewTicker(r.cfg.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

func (r *Runner) runCycle(ctx context.Context) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.logger.Warn("previous decision cycle still in flight, skipping tick")
		r.metrics.IncSkippedCycles()
		return
	}
	defer r.inFlight.Store(false)

	if err := r.cycle(ctx); err != nil {
		r.logger.Errorf("decision cycle failed: %v", err)
	}
}

func (r *Runner) cycle(ctx context.Context) error {
	// one consistent snapshot per cycle, never a mix of two ticks
	snapshot := r.mempool.Snapshot()
	sample := r.mempool.Recent(r.cfg.SampleSize)

	avgSpam, fpProxy := r.scoreSample(ctx, sample)

	state := domain.StateVector{
		MempoolTxCount:  float64(snapshot.TxCount),
		AvgFeeRate:      snapshot.AvgFeeRate,
		CongestionScore: snapshot.CongestionScore,
		AvgSpamScore:    avgSpam,
		SpamTxRatio:     snapshot.SpamTxRatio,
	}

	risk, stateValid := r.riskScore(state)
	rewardProxy := -state.MempoolTxCount*0.01 - state.SpamTxRatio*10

	var action domain.Action
	var cause domain.Cause
	switch {
	case !stateValid:
		// a state the policy cannot be trusted with defaults to maximum
		// caution
		r.logger.Errorf("state vector invariant violation, substituting defensive mode: %+v", state)
		action = domain.ActionDefensiveMode
		cause = domain.CauseInvariantViolation
	case r.disabled.Load():
		action = domain.ActionDoNothing
		cause = domain.CauseMonitorOnly
	default:
		action = r.policy.Decide(state)
		cause = domain.CausePolicy
	}

	r.collector.Update(monitor.CycleStats{
		RiskScore:     risk,
		Action:        action,
		RewardProxy:   rewardProxy,
		FalsePositive: fpProxy,
		SpamRatio:     snapshot.SpamTxRatio,
	})

	alerts := r.detector.Detect(r.collector.Summarize())
	if cause == domain.CausePolicy {
		action, cause = r.healer.Apply(alerts, action)
	} else {
		for _, alert := range alerts {
			r.logger.Warnf("drift alert (no healing applied): %s", alert)
		}
	}

	view := r.executor.Apply(action)

	sequence, err := r.store.NextSequence()
	if err != nil {
		return errors.Wrap(err, "acquiring decision sequence")
	}

	event := domain.DecisionEvent{
		Sequence:     sequence,
		State:        state,
		Action:       action,
		RiskScore:    uint8(math.Round(risk)),
		ModelVersion: r.policy.Version(),
		Cause:        cause,
		Timestamp:    time.Now().UTC(),
	}
	incident := audit.NewIncident(event)
	event.IncidentID = incident.ID

	if err := r.recorder.Record(sequence, incident); err != nil {
		r.logger.Errorf("recording incident [%s]: %v", incident.ID, err)
	}

	r.publish(ctx, event)

	r.metrics.IncDecision(action)
	if cause != domain.CausePolicy {
		r.metrics.IncOverride(cause)
	}
	r.metrics.SetMitigationPosture(view.LastSeen, view.MinFee, view.DelayMs)
	r.metrics.SetCycleState(risk, snapshot.SpamTxRatio, snapshot.CongestionScore)

	r.logger.Infow("decision cycle complete",
		"sequence", sequence,
		"action", action.String(),
		"cause", cause,
		"riskScore", event.RiskScore,
		"txCount", snapshot.TxCount,
		"spamTxRatio", snapshot.SpamTxRatio,
	)
	return nil
}

// scoreSample scores the sampled observations in parallel and aggregates the
// average spam score plus the false positive proxy, the share of samples
// where the model calls spam but the heuristic baseline does not.
func (r *Runner) scoreSample(ctx context.Context, sample []domain.TransactionObservation) (avgSpam, fpProxy float64) {
	if len(sample) == 0 {
		return 0, 0
	}

	results := make([]classifier.Result, len(sample))
	var g errgroup.Group
	g.SetLimit(8)
	for i, obs := range sample {
		g.Go(func() error {
			fv := features.Extract(obs, r.mempool)
			results[i] = r.scorer.Predict(ctx, fv)
			return nil
		})
	}
	_ = g.Wait() // Predict never fails

	threshold := r.scorer.SpamThreshold()
	var spamSum float64
	falsePositives := 0
	for _, result := range results {
		spamSum += result.Scores.Spam
		if result.Scores.Spam >= threshold && result.Baseline.Spam < threshold {
			falsePositives++
		}
	}
	n := float64(len(results))
	return spamSum / n, float64(falsePositives) / n
}

// riskScore maps the state to [0, 100]. A non finite input marks the whole
// state as untrustworthy.
func (r *Runner) riskScore(state domain.StateVector) (float64, bool) {
	for _, v := range state.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 100, false
		}
	}
	risk := state.AvgSpamScore*50 + state.CongestionScore/r.cfg.RiskCongestionScale*50
	return math.Min(math.Max(risk, 0), 100), true
}

func (r *Runner) publish(ctx context.Context, event domain.DecisionEvent) {
	for _, sink := range r.sinks {
		go func(sink EventSink) {
			if err := sink.PublishDecisionEvents(ctx, []domain.DecisionEvent{event}); err != nil {
				r.logger.Errorf("publishing decision event [%d]: %v", event.Sequence, err)
			}
		}(sink)
	}
}

package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

type Metrics struct {
	observationsCounter       prometheus.Counter
	malformedCounter          prometheus.Counter
	decisionsCounter          *prometheus.CounterVec
	overridesCounter          *prometheus.CounterVec
	skippedCyclesCounter      prometheus.Counter
	classifierFallbackCounter prometheus.Counter
	modeGauge                 prometheus.Gauge
	feeFloorGauge             prometheus.Gauge
	delayGauge                prometheus.Gauge
	riskScoreGauge            prometheus.Gauge
	spamRatioGauge            prometheus.Gauge
	congestionGauge           prometheus.Gauge
	auditQueueDepthGauge      prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	m := Metrics{
		// ingestion path
		observationsCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_observations_total", namespace),
			Help: "Number of transaction observations ingested",
		}),
		malformedCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_malformed_observations_total", namespace),
			Help: "Number of observation records that could not be decoded",
		}),
		// decision path
		decisionsCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_decisions_total", namespace),
			Help: "Number of decisions per action",
		}, []string{"action"}),
		overridesCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_overrides_total", namespace),
			Help: "Number of healer overrides per cause",
		}, []string{"cause"}),
		skippedCyclesCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_skipped_cycles_total", namespace),
			Help: "Number of decision ticks skipped because a cycle was still in flight",
		}),
		classifierFallbackCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_classifier_fallbacks_total", namespace),
			Help: "Number of predictions served by the heuristic fallback",
		}),
		// mitigation posture
		modeGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_mitigation_mode", namespace),
			Help: "Active mitigation mode as the action ordinal",
		}),
		feeFloorGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_min_fee_threshold", namespace),
			Help: "Current minimum fee threshold",
		}),
		delayGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_spam_delay_ms", namespace),
			Help: "Current spam deprioritization delay in milliseconds",
		}),
		// mempool state
		riskScoreGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_risk_score", namespace),
			Help: "Risk score of the latest decision cycle",
		}),
		spamRatioGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_spam_tx_ratio", namespace),
			Help: "Spam transaction ratio of the latest snapshot",
		}),
		congestionGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_congestion_score", namespace),
			Help: "Congestion score of the latest snapshot",
		}),
		// audit path
		auditQueueDepthGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_audit_queue_depth", namespace),
			Help: "Number of incidents waiting for ledger submission",
		}),
	}
	return &m
}

func (metrics *Metrics) IncObservations() {
	metrics.observationsCounter.Inc()
}

func (metrics *Metrics) IncMalformedObservations() {
	metrics.malformedCounter.Inc()
}

func (metrics *Metrics) IncDecision(action domain.Action) {
	metrics.decisionsCounter.WithLabelValues(action.String()).Inc()
}

func (metrics *Metrics) IncOverride(cause domain.Cause) {
	metrics.overridesCounter.WithLabelValues(string(cause)).Inc()
}

func (metrics *Metrics) IncSkippedCycles() {
	metrics.skippedCyclesCounter.Inc()
}

func (metrics *Metrics) IncClassifierFallback() {
	metrics.classifierFallbackCounter.Inc()
}

// SetMitigationPosture exports the mode as the ordinal of the last applied
// action, which maps one to one onto the mitigation modes.
func (metrics *Metrics) SetMitigationPosture(lastAction domain.Action, minFee float64, delayMs int64) {
	metrics.modeGauge.Set(float64(lastAction))
	metrics.feeFloorGauge.Set(minFee)
	metrics.delayGauge.Set(float64(delayMs))
}

func (metrics *Metrics) SetCycleState(riskScore float64, spamRatio float64, congestion float64) {
	metrics.riskScoreGauge.Set(riskScore)
	metrics.spamRatioGauge.Set(spamRatio)
	metrics.congestionGauge.Set(congestion)
}

func (metrics *Metrics) SetAuditQueueDepth(depth int) {
	metrics.auditQueueDepthGauge.Set(float64(depth))
}

package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nodescrypt/mempool-sentinel/db"
)

// ErrDuplicate is reported by ledger clients when an incident was already
// recorded. Duplicates are a success, not a failure: the audit boundary is
// idempotent.
var ErrDuplicate = errors.New("incident already recorded")

// LedgerClient is the external confidential audit ledger boundary.
type LedgerClient interface {
	LogIncident(ctx context.Context, incident Incident) error
}

// PendingStore is the durable queue backing retries.
type PendingStore interface {
	EnqueueIncident(sequence uint64, payload []byte) error
	PendingIncidents(limit int) ([]db.PendingIncident, error)
	DeleteIncident(sequence uint64) error
	QueueDepth() (int, error)
}

// QueueObserver exposes the queue depth to the metrics surface.
type QueueObserver interface {
	SetAuditQueueDepth(depth int)
}

// Config holds the recorder's retry tunables.
type Config struct {
	RetryInterval time.Duration
	MaxBackoff    time.Duration
	BatchSize     int
	SubmitTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RetryInterval: 2 * time.Second,
		MaxBackoff:    time.Minute,
		BatchSize:     16,
		SubmitTimeout: 10 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.RetryInterval <= 0 || c.MaxBackoff < c.RetryInterval {
		return errors.New("retry interval must be positive and below max backoff")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}
	if c.SubmitTimeout <= 0 {
		return errors.New("submit timeout must be positive")
	}
	return nil
}

// Recorder persists incidents locally and submits them to the ledger from a
// background worker with bounded backoff. The decision path only ever pays
// for the local enqueue; it never waits on the ledger.
type Recorder struct {
	cfg      Config
	store    PendingStore
	ledger   LedgerClient
	observer QueueObserver
	logger   *zap.SugaredLogger
}

func NewRecorder(cfg Config, store PendingStore, ledger LedgerClient, observer QueueObserver, logger *zap.SugaredLogger) (*Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating recorder config")
	}
	return &Recorder{
		cfg:      cfg,
		store:    store,
		ledger:   ledger,
		observer: observer,
		logger:   logger,
	}, nil
}

// Record queues an incident for submission. Durable and non blocking.
func (r *Recorder) Record(sequence uint64, incident Incident) error {
	payload, err := json.Marshal(incident)
	if err != nil {
		return errors.Wrap(err, "marshalling incident")
	}
	if err := r.store.EnqueueIncident(sequence, payload); err != nil {
		return errors.Wrap(err, "enqueueing incident")
	}
	return nil
}

// Start drains the queue until ctx is cancelled. Submission failures back
// off exponentially up to the configured maximum and never propagate to the
// decision loop.
func (r *Recorder) Start(ctx context.Context) {
	backoff := r.cfg.RetryInterval
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		drained, err := r.drainOnce(ctx)
		if err != nil {
			r.logger.Warnf("audit submission failed, backing off [%s]: %v", backoff, err)
			backoff = min(backoff*2, r.cfg.MaxBackoff)
			continue
		}
		backoff = r.cfg.RetryInterval
		if drained > 0 {
			r.logger.Infof("submitted [%d] incidents to the ledger", drained)
		}

		if depth, err := r.store.QueueDepth(); err == nil && r.observer != nil {
			r.observer.SetAuditQueueDepth(depth)
		}
	}
}

func (r *Recorder) drainOnce(ctx context.Context) (int, error) {
	pending, err := r.store.PendingIncidents(r.cfg.BatchSize)
	if err != nil {
		return 0, errors.Wrap(err, "reading pending incidents")
	}

	drained := 0
	for _, item := range pending {
		var incident Incident
		if err := json.Unmarshal(item.Payload, &incident); err != nil {
			// a corrupt queue entry can never succeed, drop it loudly
			r.logger.Errorf("dropping corrupt incident [%d]: %v", item.Sequence, err)
			if err := r.store.DeleteIncident(item.Sequence); err != nil {
				return drained, errors.Wrapf(err, "deleting corrupt incident [%d]", item.Sequence)
			}
			continue
		}

		if err := r.submit(ctx, incident); err != nil {
			return drained, errors.Wrapf(err, "submitting incident [%d]", item.Sequence)
		}
		if err := r.store.DeleteIncident(item.Sequence); err != nil {
			return drained, errors.Wrapf(err, "deleting settled incident [%d]", item.Sequence)
		}
		drained++
	}
	return drained, nil
}

func (r *Recorder) submit(ctx context.Context, incident Incident) error {
	submitCtx, cancel := context.WithTimeout(ctx, r.cfg.SubmitTimeout)
	defer cancel()

	err := r.ledger.LogIncident(submitCtx, incident)
	if errors.Is(err, ErrDuplicate) {
		r.logger.Infof("incident [%s] already recorded", incident.ID)
		return nil
	}
	return err
}

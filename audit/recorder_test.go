package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nodescrypt/mempool-sentinel/db"
	"github.com/nodescrypt/mempool-sentinel/domain"
)

var ErrMock = errors.New("mock error")

type FakePendingStore struct {
	queued map[uint64][]byte
}

func NewFakePendingStore() *FakePendingStore {
	return &FakePendingStore{queued: make(map[uint64][]byte)}
}

func (f *FakePendingStore) EnqueueIncident(sequence uint64, payload []byte) error {
	f.queued[sequence] = append([]byte(nil), payload...)
	return nil
}

func (f *FakePendingStore) PendingIncidents(limit int) ([]db.PendingIncident, error) {
	sequences := make([]uint64, 0, len(f.queued))
	for sequence := range f.queued {
		sequences = append(sequences, sequence)
	}
	sort.Slice(sequences, func(i, j int) bool { return sequences[i] < sequences[j] })

	var pending []db.PendingIncident
	for _, sequence := range sequences {
		if len(pending) == limit {
			break
		}
		pending = append(pending, db.PendingIncident{Sequence: sequence, Payload: f.queued[sequence]})
	}
	return pending, nil
}

func (f *FakePendingStore) DeleteIncident(sequence uint64) error {
	delete(f.queued, sequence)
	return nil
}

func (f *FakePendingStore) QueueDepth() (int, error) {
	return len(f.queued), nil
}

type MockLedger struct {
	logged      []Incident
	seen        map[string]bool
	failures    int
	duplicateOK bool
}

func NewMockLedger() *MockLedger {
	return &MockLedger{seen: make(map[string]bool)}
}

func (m *MockLedger) LogIncident(_ context.Context, incident Incident) error {
	if m.failures > 0 {
		m.failures--
		return ErrMock
	}
	if m.seen[incident.ID] {
		return ErrDuplicate
	}
	m.seen[incident.ID] = true
	m.logged = append(m.logged, incident)
	return nil
}

func newTestRecorder(t *testing.T, store PendingStore, ledger LedgerClient) *Recorder {
	t.Helper()
	recorder, err := NewRecorder(DefaultConfig(), store, ledger, nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	return recorder
}

func sampleIncident(risk uint8) Incident {
	return NewIncident(domain.DecisionEvent{
		Action:       domain.ActionDefensiveMode,
		RiskScore:    risk,
		ModelVersion: "rules-v1",
	})
}

func TestRecorder_Record_isDurable(t *testing.T) {
	store := NewFakePendingStore()
	recorder := newTestRecorder(t, store, NewMockLedger())

	require.NoError(t, recorder.Record(1, sampleIncident(10)))
	require.NoError(t, recorder.Record(2, sampleIncident(20)))

	depth, err := store.QueueDepth()
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
}

func TestRecorder_drainOnce_submitsInSequenceOrder(t *testing.T) {
	store := NewFakePendingStore()
	ledger := NewMockLedger()
	recorder := newTestRecorder(t, store, ledger)

	require.NoError(t, recorder.Record(3, sampleIncident(30)))
	require.NoError(t, recorder.Record(1, sampleIncident(10)))
	require.NoError(t, recorder.Record(2, sampleIncident(20)))

	drained, err := recorder.drainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, drained)
	require.Len(t, ledger.logged, 3)
	assert.Equal(t, uint8(10), ledger.logged[0].RiskScore)
	assert.Equal(t, uint8(30), ledger.logged[2].RiskScore)

	depth, _ := store.QueueDepth()
	assert.Zero(t, depth)
}

func TestRecorder_drainOnce_duplicateIsSuccess(t *testing.T) {
	store := NewFakePendingStore()
	ledger := NewMockLedger()
	recorder := newTestRecorder(t, store, ledger)

	incident := sampleIncident(42)
	require.NoError(t, recorder.Record(1, incident))
	require.NoError(t, recorder.Record(2, incident)) // same incident id

	drained, err := recorder.drainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, drained)
	assert.Len(t, ledger.logged, 1) // recorded exactly once

	depth, _ := store.QueueDepth()
	assert.Zero(t, depth)
}

func TestRecorder_drainOnce_keepsQueueOnFailure(t *testing.T) {
	store := NewFakePendingStore()
	ledger := NewMockLedger()
	ledger.failures = 1
	recorder := newTestRecorder(t, store, ledger)

	require.NoError(t, recorder.Record(1, sampleIncident(10)))
	require.NoError(t, recorder.Record(2, sampleIncident(20)))

	_, err := recorder.drainOnce(context.Background())
	require.Error(t, err)

	// nothing lost, both retried on the next pass
	depth, _ := store.QueueDepth()
	assert.Equal(t, 2, depth)

	drained, err := recorder.drainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, drained)
}

func TestRecorder_drainOnce_dropsCorruptPayload(t *testing.T) {
	store := NewFakePendingStore()
	ledger := NewMockLedger()
	recorder := newTestRecorder(t, store, ledger)

	require.NoError(t, store.EnqueueIncident(1, []byte("not json")))
	payload, err := json.Marshal(sampleIncident(10))
	require.NoError(t, err)
	require.NoError(t, store.EnqueueIncident(2, payload))

	drained, err := recorder.drainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, drained)
	assert.Len(t, ledger.logged, 1)

	depth, _ := store.QueueDepth()
	assert.Zero(t, depth)
}

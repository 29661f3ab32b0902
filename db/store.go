// Package db is the local durable store: the decision sequence counter and
// the pending incident queue the audit recorder drains in the background.
package db

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("store resource not found")

const (
	lastSequenceKey     = 0x00
	pendingIncidentMark = 0x01
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(storeDir string) (*PebbleStore, error) {
	db, err := pebble.Open(filepath.Join(storeDir, "sentinel-internal-store"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble db: %v", err)
	}
	return &PebbleStore{db: db}, nil
}

// NextSequence increments and persists the decision sequence counter.
// Decision events are ordered by this value, not by wall clock.
func (ps *PebbleStore) NextSequence() (uint64, error) {
	sequence, err := ps.GetLastSequence()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, errors.Wrap(err, "getting last sequence")
	}
	sequence++

	key := []byte{lastSequenceKey}
	var value []byte
	value = binary.BigEndian.AppendUint64(value, sequence)
	if err := ps.db.Set(key, value, pebble.Sync); err != nil {
		return 0, errors.Wrapf(err, "setting sequence to [%d]", sequence)
	}
	return sequence, nil
}

func (ps *PebbleStore) GetLastSequence() (uint64, error) {
	value, closer, err := ps.db.Get([]byte{lastSequenceKey})
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, errors.Wrap(err, "getting last sequence")
	}
	defer closeOrLog(closer)

	return binary.BigEndian.Uint64(value), nil
}

// PendingIncident is one queued audit submission.
type PendingIncident struct {
	Sequence uint64
	Payload  []byte
}

func incidentKey(sequence uint64) []byte {
	key := []byte{pendingIncidentMark}
	return binary.BigEndian.AppendUint64(key, sequence)
}

// EnqueueIncident persists an incident payload for later submission.
func (ps *PebbleStore) EnqueueIncident(sequence uint64, payload []byte) error {
	if err := ps.db.Set(incidentKey(sequence), payload, pebble.Sync); err != nil {
		return errors.Wrapf(err, "enqueueing incident [%d]", sequence)
	}
	return nil
}

// PendingIncidents returns up to limit queued incidents in sequence order.
func (ps *PebbleStore) PendingIncidents(limit int) ([]PendingIncident, error) {
	iter, err := ps.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{pendingIncidentMark},
		UpperBound: []byte{pendingIncidentMark + 1},
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating iterator")
	}
	defer closeOrLog(iter)

	var pending []PendingIncident
	for iter.First(); iter.Valid() && len(pending) < limit; iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, errors.Wrap(err, "getting value from iter")
		}
		pending = append(pending, PendingIncident{
			Sequence: binary.BigEndian.Uint64(iter.Key()[1:]),
			Payload:  append([]byte(nil), value...),
		})
	}
	return pending, nil
}

// DeleteIncident removes a settled incident from the queue.
func (ps *PebbleStore) DeleteIncident(sequence uint64) error {
	if err := ps.db.Delete(incidentKey(sequence), pebble.Sync); err != nil {
		return errors.Wrapf(err, "deleting incident [%d]", sequence)
	}
	return nil
}

// QueueDepth counts the incidents still waiting for submission.
func (ps *PebbleStore) QueueDepth() (int, error) {
	iter, err := ps.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{pendingIncidentMark},
		UpperBound: []byte{pendingIncidentMark + 1},
	})
	if err != nil {
		return 0, errors.Wrap(err, "creating iterator")
	}
	defer closeOrLog(iter)

	depth := 0
	for iter.First(); iter.Valid(); iter.Next() {
		depth++
	}
	return depth, nil
}

func (ps *PebbleStore) Close() error {
	return ps.db.Close()
}

func closeOrLog(closer io.Closer) {
	if err := closer.Close(); err != nil {
		log.Printf("[ERROR] closing db resource: %v", err)
	}
}

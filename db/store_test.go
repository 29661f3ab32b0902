package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *PebbleStore {
	t.Helper()
	store, err := NewPebbleStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestPebbleStore_NextSequence(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetLastSequence()
	assert.ErrorIs(t, err, ErrNotFound)

	for want := uint64(1); want <= 5; want++ {
		got, err := store.NextSequence()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	last, err := store.GetLastSequence()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)
}

func TestPebbleStore_incidentQueue(t *testing.T) {
	store := newTestStore(t)

	depth, err := store.QueueDepth()
	require.NoError(t, err)
	assert.Zero(t, depth)

	// enqueue out of order, expect sequence order back
	require.NoError(t, store.EnqueueIncident(3, []byte("third")))
	require.NoError(t, store.EnqueueIncident(1, []byte("first")))
	require.NoError(t, store.EnqueueIncident(2, []byte("second")))

	pending, err := store.PendingIncidents(10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, uint64(1), pending[0].Sequence)
	assert.Equal(t, []byte("first"), pending[0].Payload)
	assert.Equal(t, uint64(3), pending[2].Sequence)

	pending, err = store.PendingIncidents(2)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, store.DeleteIncident(1))
	pending, err = store.PendingIncidents(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, uint64(2), pending[0].Sequence)

	depth, err = store.QueueDepth()
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
}

func TestPebbleStore_DeleteIncident_missingIsNoError(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.DeleteIncident(42))
}

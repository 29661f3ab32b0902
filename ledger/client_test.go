package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodescrypt/mempool-sentinel/audit"
	"github.com/nodescrypt/mempool-sentinel/domain"
)

func newLedgerServer(t *testing.T) (*httptest.Server, *map[string]int) {
	t.Helper()

	var mu sync.Mutex
	received := make(map[string]int)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/incidents", r.URL.Path)

		var incident audit.Incident
		require.NoError(t, json.NewDecoder(r.Body).Decode(&incident))

		mu.Lock()
		defer mu.Unlock()
		received[incident.ID]++
		if received[incident.ID] > 1 {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(server.Close)

	return server, &received
}

func TestClient_LogIncident(t *testing.T) {
	server, received := newLedgerServer(t)
	client := NewClient(server.URL, time.Second)

	incident := audit.NewIncident(domain.DecisionEvent{
		Action:       domain.ActionRaiseFeeThreshold,
		RiskScore:    55,
		ModelVersion: "ppo-2024-11",
	})

	require.NoError(t, client.LogIncident(context.Background(), incident))
	assert.Equal(t, 1, (*received)[incident.ID])
}

func TestClient_LogIncident_conflictIsDuplicate(t *testing.T) {
	server, _ := newLedgerServer(t)
	client := NewClient(server.URL, time.Second)

	incident := audit.NewIncident(domain.DecisionEvent{
		Action:       domain.ActionDefensiveMode,
		RiskScore:    90,
		ModelVersion: "ppo-2024-11",
	})

	require.NoError(t, client.LogIncident(context.Background(), incident))
	err := client.LogIncident(context.Background(), incident)
	assert.ErrorIs(t, err, audit.ErrDuplicate)
}

func TestClient_LogIncident_serverError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, time.Second)
	err := client.LogIncident(context.Background(), audit.Incident{ID: "abc"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, audit.ErrDuplicate)
}

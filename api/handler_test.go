package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodescrypt/mempool-sentinel/domain"
	"github.com/nodescrypt/mempool-sentinel/mitigation"
	"github.com/nodescrypt/mempool-sentinel/monitor"
)

type FakeState struct {
	view mitigation.View
}

func (f *FakeState) View() mitigation.View { return f.view }

type FakeMempool struct {
	snapshot domain.MempoolSnapshot
}

func (f *FakeMempool) Snapshot() domain.MempoolSnapshot { return f.snapshot }

type FakeHealing struct {
	events []monitor.HealingEvent
}

func (f *FakeHealing) History() []monitor.HealingEvent { return f.events }

type FakeAdmin struct {
	disabled bool
}

func (f *FakeAdmin) SetDisabled(disabled bool) { f.disabled = disabled }
func (f *FakeAdmin) Disabled() bool            { return f.disabled }

func newTestHandler() (*Handler, *FakeAdmin) {
	admin := &FakeAdmin{}
	handler := NewHandler(
		&FakeState{view: mitigation.View{
			Mode:     domain.ModeFeeFilter,
			MinFee:   10,
			LastSeen: domain.ActionRaiseFeeThreshold,
		}},
		&FakeMempool{snapshot: domain.MempoolSnapshot{
			Timestamp:       time.Now().UTC(),
			TxCount:         7,
			AvgFeeRate:      2.5,
			CongestionScore: 3,
			SpamTxRatio:     0.1,
		}},
		&FakeHealing{events: []monitor.HealingEvent{
			{Alert: monitor.Alert{Kind: monitor.AlertHighSpamEnv}, Remedy: "forced DEFENSIVE_MODE"},
		}},
		admin,
	)
	return handler, admin
}

func TestHandler_GetHealth(t *testing.T) {
	handler, _ := newTestHandler()

	recorder := httptest.NewRecorder()
	handler.GetHealth(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"status":"UP"}`, recorder.Body.String())
}

func TestHandler_GetStatus(t *testing.T) {
	handler, _ := newTestHandler()

	recorder := httptest.NewRecorder()
	handler.GetStatus(recorder, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	assert.Contains(t, body, `"mode":"FEE_FILTER"`)
	assert.Contains(t, body, `"minFee":10`)
	assert.Contains(t, body, `"txCount":7`)
	assert.Contains(t, body, `"HIGH_SPAM_ENV"`)
	assert.Contains(t, body, `"disabled":false`)
}

func TestHandler_PostMitigation(t *testing.T) {
	handler, admin := newTestHandler()

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/admin/mitigation", strings.NewReader(`{"disabled":true}`))
	handler.PostMitigation(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, admin.disabled)
	assert.JSONEq(t, `{"disabled":true}`, recorder.Body.String())
}

func TestHandler_PostMitigation_missingField(t *testing.T) {
	handler, admin := newTestHandler()

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/admin/mitigation", strings.NewReader(`{}`))
	handler.PostMitigation(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.False(t, admin.disabled)
}

func TestHandler_PostMitigation_wrongMethod(t *testing.T) {
	handler, _ := newTestHandler()

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/v1/admin/mitigation", nil)
	handler.PostMitigation(recorder, request)

	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/nodescrypt/mempool-sentinel/domain"
	"github.com/nodescrypt/mempool-sentinel/mitigation"
	"github.com/nodescrypt/mempool-sentinel/monitor"
)

type MitigationView interface {
	View() mitigation.View
}

type SnapshotProvider interface {
	Snapshot() domain.MempoolSnapshot
}

type HealingHistory interface {
	History() []monitor.HealingEvent
}

type AdminControl interface {
	SetDisabled(disabled bool)
	Disabled() bool
}

type Handler struct {
	state   MitigationView
	mempool SnapshotProvider
	healing HealingHistory
	admin   AdminControl
}

type HealthResponse struct {
	Status string `json:"status"`
}

type StatusResponse struct {
	Mitigation mitigation.View        `json:"mitigation"`
	Snapshot   snapshotResponse       `json:"snapshot"`
	Healing    []monitor.HealingEvent `json:"healingEvents"`
	Disabled   bool                   `json:"disabled"`
}

type snapshotResponse struct {
	Timestamp       string  `json:"timestamp"`
	TxCount         int     `json:"txCount"`
	AvgFeeRate      float64 `json:"avgFeeRate"`
	CongestionScore float64 `json:"congestionScore"`
	SpamTxRatio     float64 `json:"spamTxRatio"`
}

type AdminRequest struct {
	Disabled *bool `json:"disabled"`
}

type AdminResponse struct {
	Disabled bool `json:"disabled"`
}

func NewHandler(state MitigationView, mempool SnapshotProvider, healing HealingHistory, admin AdminControl) *Handler {
	return &Handler{
		state:   state,
		mempool: mempool,
		healing: healing,
		admin:   admin,
	}
}

func (h *Handler) GetHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(HealthResponse{
		Status: "UP",
	})
	if err != nil {
		log.Printf("Error encoding response: %v", err)
		http.Error(w, "Error encoding response", 500)
		return
	}
}

func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.mempool.Snapshot()

	w.Header().Add("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(StatusResponse{
		Mitigation: h.state.View(),
		Snapshot: snapshotResponse{
			Timestamp:       snapshot.Timestamp.String(),
			TxCount:         snapshot.TxCount,
			AvgFeeRate:      snapshot.AvgFeeRate,
			CongestionScore: snapshot.CongestionScore,
			SpamTxRatio:     snapshot.SpamTxRatio,
		},
		Healing:  h.healing.History(),
		Disabled: h.admin.Disabled(),
	})
	if err != nil {
		log.Printf("Error encoding response: %v", err)
		http.Error(w, "Error encoding response", 500)
		return
	}
}

// PostMitigation toggles monitor only mode.
func (h *Handler) PostMitigation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request AdminRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Error decoding request", http.StatusBadRequest)
		return
	}
	if request.Disabled == nil {
		http.Error(w, "Missing 'disabled' field", http.StatusBadRequest)
		return
	}

	h.admin.SetDisabled(*request.Disabled)
	log.Printf("Operator set mitigation disabled to [%t]", *request.Disabled)

	w.Header().Add("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(AdminResponse{
		Disabled: h.admin.Disabled(),
	})
	if err != nil {
		log.Printf("Error encoding response: %v", err)
		http.Error(w, "Error encoding response", 500)
		return
	}
}

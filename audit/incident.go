// Package audit anchors every mitigation decision in the external
// confidential ledger. The incident hash covers only the non sensitive
// decision fields, so leakage of sender identities or transaction contents
// is impossible by construction rather than by convention.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

// IncidentID is the deterministic content hash of a decision event.
type IncidentID [32]byte

func (id IncidentID) Hex() string {
	return hex.EncodeToString(id[:])
}

// Incident is the ledger submission payload.
type Incident struct {
	ID        string        `json:"incidentId"`
	Action    domain.Action `json:"actionTaken"`
	ModelID   string        `json:"modelId"`
	RiskScore uint8         `json:"riskScore"`
	Timestamp int64         `json:"timestamp"`
}

// ComputeIncidentID hashes the canonical serialization of the decision
// payload. The field set is fixed: action, model version, risk score and
// timestamp. Nothing else can flow into the hash.
func ComputeIncidentID(action domain.Action, modelVersion string, riskScore uint8, timestamp time.Time) IncidentID {
	canonical := fmt.Sprintf("action=%d|model=%s|risk=%d|ts=%d",
		uint8(action), modelVersion, riskScore, timestamp.Unix())
	return sha256.Sum256([]byte(canonical))
}

// NewIncident derives the ledger payload from a decision event.
func NewIncident(event domain.DecisionEvent) Incident {
	id := ComputeIncidentID(event.Action, event.ModelVersion, event.RiskScore, event.Timestamp)
	return Incident{
		ID:        id.Hex(),
		Action:    event.Action,
		ModelID:   event.ModelVersion,
		RiskScore: event.RiskScore,
		Timestamp: event.Timestamp.Unix(),
	}
}

package domain

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Action is a mitigation action selected by the decision policy.
type Action uint8

const (
	ActionDoNothing Action = iota
	ActionRaiseFeeThreshold
	ActionDeprioritizeSpam
	ActionDefensiveMode
)

func (a Action) String() string {
	switch a {
	case ActionDoNothing:
		return "DO_NOTHING"
	case ActionRaiseFeeThreshold:
		return "RAISE_FEE_THRESHOLD"
	case ActionDeprioritizeSpam:
		return "DEPRIORITIZE_SPAM"
	case ActionDefensiveMode:
		return "DEFENSIVE_MODE"
	}
	return "UNKNOWN"
}

// Valid reports whether the action is one of the four known ordinals.
func (a Action) Valid() bool {
	return a <= ActionDefensiveMode
}

// Actions serialize by name so event payloads and incident records stay
// readable without an ordinal table.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "DO_NOTHING":
		*a = ActionDoNothing
	case "RAISE_FEE_THRESHOLD":
		*a = ActionRaiseFeeThreshold
	case "DEPRIORITIZE_SPAM":
		*a = ActionDeprioritizeSpam
	case "DEFENSIVE_MODE":
		*a = ActionDefensiveMode
	default:
		return errors.Errorf("unknown action [%s]", name)
	}
	return nil
}

// MitigationMode is the currently active local mitigation posture.
type MitigationMode string

const (
	ModeNormal               MitigationMode = "NORMAL"
	ModeFeeFilter            MitigationMode = "FEE_FILTER"
	ModeSpamDeprioritization MitigationMode = "SPAM_DEPRIORITIZATION"
	ModeDefensive            MitigationMode = "DEFENSIVE"
)

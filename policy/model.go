package policy

import (
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

const stateDimensions = 5
const actionCount = 4

// artifact is the frozen, versioned policy file produced by offline
// training. It holds one linear score function per action; serving is a
// plain argmax with no exploration noise.
type artifact struct {
	Version string      `json:"version"`
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// ModelPolicy serves a trained policy artifact deterministically.
type ModelPolicy struct {
	version string
	weights [actionCount][stateDimensions]float64
	bias    [actionCount]float64
}

// LoadModelPolicy reads and validates a policy artifact from disk.
func LoadModelPolicy(path string) (*ModelPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading policy artifact")
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrap(err, "unmarshalling policy artifact")
	}
	return newModelPolicy(a)
}

func newModelPolicy(a artifact) (*ModelPolicy, error) {
	if a.Version == "" {
		return nil, errors.New("policy artifact has no version")
	}
	if len(a.Weights) != actionCount || len(a.Bias) != actionCount {
		return nil, errors.Errorf("policy artifact must carry [%d] actions, got [%d] weight rows and [%d] bias values",
			actionCount, len(a.Weights), len(a.Bias))
	}

	p := ModelPolicy{version: a.Version}
	for i, row := range a.Weights {
		if len(row) != stateDimensions {
			return nil, errors.Errorf("weight row [%d] has [%d] values, want [%d]", i, len(row), stateDimensions)
		}
		for j, w := range row {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, errors.Errorf("weight [%d][%d] is not finite", i, j)
			}
			p.weights[i][j] = w
		}
		if math.IsNaN(a.Bias[i]) || math.IsInf(a.Bias[i], 0) {
			return nil, errors.Errorf("bias [%d] is not finite", i)
		}
		p.bias[i] = a.Bias[i]
	}
	return &p, nil
}

// Decide scores every action against the state and picks the best one. Ties
// resolve to the lower ordinal so repeated calls agree.
func (p *ModelPolicy) Decide(state domain.StateVector) domain.Action {
	vector := state.Vector()

	best := domain.ActionDoNothing
	bestScore := math.Inf(-1)
	for action := 0; action < actionCount; action++ {
		score := p.bias[action]
		for i, v := range vector {
			score += p.weights[action][i] * v
		}
		if score > bestScore {
			bestScore = score
			best = domain.Action(action)
		}
	}
	return best
}

func (p *ModelPolicy) Version() string {
	return p.version
}

package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/drlrcc/torcs-driver/pkg/core"
	"gonum.org/v1/gonum/floats"
)

// Feature sets a LinearSteerer can read.
const (
	FeaturesVector = "vector"
	FeaturesGray   = "gray"
)

// ErrNoFrame is returned by a gray-feature model when the tick has no image.
var ErrNoFrame = errors.New("observation has no vision frame")

// LinearModel is the on-disk form of a LinearSteerer.
type LinearModel struct {
	Features string    `json:"features"`
	Weights  []float64 `json:"weights"`
	Bias     float64   `json:"bias"`
	Mean     float64   `json:"mean"`
}

// LinearSteerer predicts steering as a weighted sum of the observation.
type LinearSteerer struct {
	model LinearModel
}

// NewLinearSteerer validates model and wraps it.
func NewLinearSteerer(model LinearModel) (*LinearSteerer, error) {
	switch model.Features {
	case "":
		model.Features = FeaturesVector
	case FeaturesVector, FeaturesGray:
	default:
		return nil, fmt.Errorf("unknown feature set %q", model.Features)
	}
	if len(model.Weights) == 0 {
		return nil, errors.New("model has no weights")
	}
	return &LinearSteerer{model: model}, nil
}

// LoadLinearSteerer reads a JSON model file.
func LoadLinearSteerer(path string) (*LinearSteerer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	return NewLinearSteerer(m)
}

// Steer implements Steerer.
func (l *LinearSteerer) Steer(obs core.Observation) (float64, error) {
	var x []float64
	switch l.model.Features {
	case FeaturesGray:
		if obs.Frame == nil {
			return 0, ErrNoFrame
		}
		x = obs.Frame.Gray()
		if l.model.Mean != 0 {
			floats.AddConst(-l.model.Mean, x)
		}
	default:
		x = obs.Vector()
	}
	if len(x) != len(l.model.Weights) {
		return 0, fmt.Errorf("model expects %d inputs, observation has %d", len(l.model.Weights), len(x))
	}
	return floats.Dot(l.model.Weights, x) + l.model.Bias, nil
}

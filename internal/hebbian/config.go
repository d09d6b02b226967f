// Package hebbian implements the correlation learning rules of the engine:
// pairwise vector attraction between co-active nodes and the bulk edge
// weight pass run once per tick.
package hebbian

import (
	"fmt"

	"github.com/nvandessel/loom/internal/constants"
)

// Rule selects the edge weight update of UpdateGlobal.
type Rule string

const (
	// RulePlain adds act_i * act_j * eta to the weight.
	RulePlain Rule = "plain"

	// RuleOja subtracts the forgetting term act_j^2 * w, which keeps weights
	// from saturating at the upper bound under sustained co-activation.
	RuleOja Rule = "oja"
)

// Config configures Hebbian learning.
type Config struct {
	// LearningRate (eta) scales every edge weight update. Default: 0.01.
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`

	// Threshold is the activation a node must exceed to take part in the
	// global pass. Default: 0.1.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// SemanticPull scales the symmetric pull on the semantic subregion.
	SemanticPull float64 `json:"semantic_pull" yaml:"semantic_pull"`

	// SpatialPull scales the conformal pull on the spatial subregion.
	SpatialPull float64 `json:"spatial_pull" yaml:"spatial_pull"`

	// FieldPull scales the resonance-modulated pull on the auxiliary field.
	FieldPull float64 `json:"field_pull" yaml:"field_pull"`

	// Rule is the edge update rule. Default: plain.
	Rule Rule `json:"rule" yaml:"rule"`
}

// DefaultConfig returns the default learning configuration.
func DefaultConfig() Config {
	return Config{
		LearningRate: constants.DefaultLearningRate,
		Threshold:    constants.ActivationThreshold,
		SemanticPull: constants.SemanticPullFactor,
		SpatialPull:  constants.SpatialPullFactor,
		FieldPull:    constants.FieldPullFactor,
		Rule:         RulePlain,
	}
}

// Validate checks that the configuration can drive the engine.
func (c Config) Validate() error {
	if c.LearningRate < 0 {
		return fmt.Errorf("learning_rate must be non-negative, got %v", c.LearningRate)
	}
	if c.Threshold < 0 || c.Threshold >= 1 {
		return fmt.Errorf("threshold must be in [0, 1), got %v", c.Threshold)
	}
	for name, v := range map[string]float64{
		"semantic_pull": c.SemanticPull,
		"spatial_pull":  c.SpatialPull,
		"field_pull":    c.FieldPull,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", name, v)
		}
	}
	switch c.Rule {
	case RulePlain, RuleOja, "":
	default:
		return fmt.Errorf("unknown rule %q (valid: plain, oja)", c.Rule)
	}
	return nil
}

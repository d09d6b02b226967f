// Package hyperedge promotes groups of nodes to processors.
//
// Each hyperedge owns a processor vector, a scalar state and a usage
// counter, and is backed by a processor node in the vector store that is
// wired to every participant by a bidirectional edge of weight 1/arity
// (the Levi graph of the hypergraph). Every tick the processor reads its
// participants' activations, blends a type-specific response into its
// state, and, once the state crosses the activation threshold, feeds it
// back into the pairwise bonds among the participants.
package hyperedge

import (
	"fmt"

	"github.com/nvandessel/loom/internal/constants"
	"github.com/nvandessel/loom/internal/models"
)

// Hyperedge is one registered processor.
type Hyperedge struct {
	ID           models.HyperedgeID   `json:"id"`
	Participants []models.NodeID      `json:"participants"`
	Type         models.ProcessorType `json:"type"`
	Vector       []float64            `json:"-"`
	State        float64              `json:"state"`
	Usage        uint32               `json:"usage"`
	Processor    models.NodeID        `json:"processor"`
}

// Arity returns the number of participants.
func (h *Hyperedge) Arity() int { return len(h.Participants) }

// clone returns a deep copy so callers cannot mutate registry state.
func (h *Hyperedge) clone() Hyperedge {
	c := *h
	c.Participants = append([]models.NodeID(nil), h.Participants...)
	c.Vector = append([]float64(nil), h.Vector...)
	return c
}

// Config configures the registry.
type Config struct {
	// MaxArity is the largest participant count. Default: 6.
	MaxArity int `json:"max_arity" yaml:"max_arity"`

	// ProcessorDim is the length of every processor vector. Default: 128.
	ProcessorDim int `json:"processor_dim" yaml:"processor_dim"`

	// Capacity is the number of hyperedges the registry holds. Default: 1024.
	Capacity int `json:"capacity" yaml:"capacity"`

	// Threshold is the activation above which a participant counts as
	// active, and the state above which back-propagation runs. Default: 0.1.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// ResonanceGain is the per-active-participant amplification of
	// RESONANCE processors. Default: 0.1.
	ResonanceGain float64 `json:"resonance_gain" yaml:"resonance_gain"`

	// Retention is the share of the previous state kept on every compute.
	// Default: 0.9.
	Retention float64 `json:"retention" yaml:"retention"`

	// BackpropScale scales state into the pairwise learning rate and the
	// participant edge nudge. Default: 0.01.
	BackpropScale float64 `json:"backprop_scale" yaml:"backprop_scale"`
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		MaxArity:      constants.DefaultMaxArity,
		ProcessorDim:  constants.DefaultProcessorDimension,
		Capacity:      constants.DefaultMaxHyperedges,
		Threshold:     constants.ActivationThreshold,
		ResonanceGain: constants.ResonanceGain,
		Retention:     constants.StateRetention,
		BackpropScale: constants.BackpropScale,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxArity < 2 {
		return fmt.Errorf("max_arity must be at least 2, got %d", c.MaxArity)
	}
	if c.ProcessorDim < 4 {
		return fmt.Errorf("processor_dim must be at least 4, got %d", c.ProcessorDim)
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.Retention < 0 || c.Retention >= 1 {
		return fmt.Errorf("retention must be in [0, 1), got %v", c.Retention)
	}
	if c.Threshold < 0 || c.Threshold >= 1 {
		return fmt.Errorf("threshold must be in [0, 1), got %v", c.Threshold)
	}
	if c.ResonanceGain < 0 || c.BackpropScale < 0 {
		return fmt.Errorf("resonance_gain and backprop_scale must be non-negative")
	}
	return nil
}

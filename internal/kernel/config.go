package kernel

import (
	"fmt"
	"runtime"

	"github.com/nvandessel/loom/internal/consolidation"
	"github.com/nvandessel/loom/internal/constants"
	"github.com/nvandessel/loom/internal/graph"
	"github.com/nvandessel/loom/internal/hebbian"
	"github.com/nvandessel/loom/internal/hyperedge"
	"github.com/nvandessel/loom/internal/persistence"
	"github.com/nvandessel/loom/internal/vecstore"
)

// Config holds every tunable of an engine.
type Config struct {
	// Layout partitions node vectors. Its Dimension is the vector length.
	Layout vecstore.Layout

	// NodeCapacity is the number of node slots, processor nodes included.
	NodeCapacity int

	// EdgeCapacity is the number of CSR entries.
	EdgeCapacity int

	// Bounds limit every edge weight.
	Bounds graph.Bounds

	// TimeStep (dt) scales the phase-2 update. Default: 0.01.
	TimeStep float64

	// Diffusion is the activation diffusion coefficient. Default: 0.1.
	Diffusion float64

	// CouplingThreshold is the activation product above which a neighbor
	// pulls on a node's vector. Default: 0.25.
	CouplingThreshold float64

	// Workers bounds the goroutines of the force phase. Results do not
	// depend on it. Default: GOMAXPROCS.
	Workers int

	// Precision of saved topologies.
	Precision persistence.Precision

	Learning      hebbian.Config
	Hyperedge     hyperedge.Config
	Consolidation consolidation.Config
}

// DefaultConfig returns the reference configuration: 256-dimension vectors,
// 4096 node slots and 20 edges per node.
func DefaultConfig() Config {
	return Config{
		Layout:            vecstore.DefaultLayout(),
		NodeCapacity:      constants.DefaultNodeCapacity,
		EdgeCapacity:      constants.DefaultNodeCapacity * constants.DefaultEdgesPerNode,
		Bounds:            graph.DefaultBounds(),
		TimeStep:          constants.DefaultTimeStep,
		Diffusion:         constants.DefaultDiffusion,
		CouplingThreshold: constants.CouplingThreshold,
		Workers:           runtime.GOMAXPROCS(0),
		Precision:         persistence.Float32,
		Learning:          hebbian.DefaultConfig(),
		Hyperedge:         hyperedge.DefaultConfig(),
		Consolidation:     consolidation.DefaultConfig(),
	}
}

// Validate checks the configuration and every nested section.
func (c Config) Validate() error {
	if err := c.Layout.Validate(); err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	if c.NodeCapacity <= 0 || c.EdgeCapacity <= 0 {
		return fmt.Errorf("capacities must be positive, got nodes=%d edges=%d", c.NodeCapacity, c.EdgeCapacity)
	}
	if c.Bounds.Min > c.Bounds.Max {
		return fmt.Errorf("weight bounds inverted: %v > %v", c.Bounds.Min, c.Bounds.Max)
	}
	if c.TimeStep <= 0 || c.TimeStep > 1 {
		return fmt.Errorf("time_step must be in (0, 1], got %v", c.TimeStep)
	}
	if c.Diffusion < 0 {
		return fmt.Errorf("diffusion must be non-negative, got %v", c.Diffusion)
	}
	if c.Precision != persistence.Float32 && c.Precision != persistence.Float16 {
		return fmt.Errorf("unsupported precision %s", c.Precision)
	}
	if err := c.Learning.Validate(); err != nil {
		return fmt.Errorf("learning: %w", err)
	}
	if err := c.Hyperedge.Validate(); err != nil {
		return fmt.Errorf("hyperedge: %w", err)
	}
	if err := c.Consolidation.Validate(); err != nil {
		return fmt.Errorf("consolidation: %w", err)
	}
	return nil
}

// header returns the persistence constants of this configuration.
func (c Config) header() persistence.Header {
	h := persistence.Header{
		Dimension:    uint32(c.Layout.Dimension),
		NodeCapacity: uint32(c.NodeCapacity),
		EdgeCapacity: uint32(c.EdgeCapacity),
		ProcessorDim: uint32(c.Hyperedge.ProcessorDim),
		MaxArity:     uint32(c.Hyperedge.MaxArity),
		Precision:    c.Precision,
	}
	for i, r := range c.Layout.Regions() {
		h.Layout[i] = uint32(r.Len)
	}
	return h
}

// Package consolidation runs the periodic maintenance pass of a topology:
// weak edges are flagged temporary, heavily used hyperedges are
// strengthened, and every few passes the edge arrays are compacted.
package consolidation

import (
	"fmt"
	"math"

	"github.com/nvandessel/loom/internal/constants"
	"github.com/nvandessel/loom/internal/graph"
	"github.com/nvandessel/loom/internal/hyperedge"
	"github.com/nvandessel/loom/internal/models"
)

// Config configures the scheduler.
type Config struct {
	// Interval is the number of ticks between passes. Default: 1000.
	Interval uint64 `json:"interval" yaml:"interval"`

	// PruneThreshold is the absolute weight below which an edge is flagged
	// temporary. Default: 10/127.
	PruneThreshold float64 `json:"prune_threshold" yaml:"prune_threshold"`

	// UsageThreshold is the usage count a hyperedge must exceed to be
	// strengthened. Default: 10.
	UsageThreshold uint32 `json:"usage_threshold" yaml:"usage_threshold"`

	// StrengthenFactor multiplies the state of a strengthened hyperedge.
	// Default: 1.1.
	StrengthenFactor float64 `json:"strengthen_factor" yaml:"strengthen_factor"`

	// CompactEvery physically removes temporary edges every N passes.
	// Zero disables compaction.
	CompactEvery int `json:"compact_every" yaml:"compact_every"`
}

// DefaultConfig returns the default consolidation configuration.
func DefaultConfig() Config {
	return Config{
		Interval:         constants.DefaultConsolidationInterval,
		PruneThreshold:   constants.PruneThreshold,
		UsageThreshold:   constants.UsageThreshold,
		StrengthenFactor: constants.StrengthenFactor,
		CompactEvery:     10,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Interval == 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.PruneThreshold < 0 {
		return fmt.Errorf("prune_threshold must be non-negative, got %v", c.PruneThreshold)
	}
	if c.StrengthenFactor < 1 {
		return fmt.Errorf("strengthen_factor must be at least 1, got %v", c.StrengthenFactor)
	}
	if c.CompactEvery < 0 {
		return fmt.Errorf("compact_every must be non-negative, got %d", c.CompactEvery)
	}
	return nil
}

// Report describes one consolidation pass.
type Report struct {
	Tick         uint64               `json:"tick"`
	Pass         int                  `json:"pass"`
	Flagged      int                  `json:"flagged"`
	Restored     int                  `json:"restored"`
	Temporary    int                  `json:"temporary"`
	Strengthened []models.HyperedgeID `json:"strengthened,omitempty"`
	Compacted    int                  `json:"compacted"`
}

// Scheduler decides when consolidation runs and performs it.
type Scheduler struct {
	cfg    Config
	passes int
}

// New creates a scheduler.
func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consolidation config: %w", err)
	}
	return &Scheduler{cfg: cfg}, nil
}

// Config returns the scheduler configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Passes returns the number of passes run so far.
func (s *Scheduler) Passes() int { return s.passes }

// Due reports whether a pass should run at the end of tick.
func (s *Scheduler) Due(tick uint64) bool {
	return tick > 0 && tick%s.cfg.Interval == 0
}

// Run performs one pass. Edges below the prune threshold only gain
// FlagTemporary, their weights are left as they are. A flagged edge whose
// weight has since recovered to the threshold loses the flag before
// compaction, so no edge at or above the threshold is ever removed.
func (s *Scheduler) Run(tick uint64, g *graph.Graph, reg *hyperedge.Registry) Report {
	s.passes++
	rep := Report{Tick: tick, Pass: s.passes}

	for i := 0; i < g.Len(); i++ {
		if math.Abs(g.WeightAt(i)) < s.cfg.PruneThreshold {
			if g.MarkTemporaryAt(i) {
				rep.Flagged++
			}
		} else if g.ClearTemporaryAt(i) {
			rep.Restored++
		}
	}

	if reg != nil {
		rep.Strengthened = reg.Strengthen(s.cfg.UsageThreshold, s.cfg.StrengthenFactor)
	}

	if s.cfg.CompactEvery > 0 && s.passes%s.cfg.CompactEvery == 0 {
		rep.Compacted = g.Compact()
	}
	rep.Temporary = g.CountTemporary()
	return rep
}

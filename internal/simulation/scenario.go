package simulation

import (
	"github.com/nvandessel/loom/internal/config"
	"github.com/nvandessel/loom/internal/hyperedge"
	"github.com/nvandessel/loom/internal/kernel"
	"github.com/nvandessel/loom/internal/models"
	"github.com/nvandessel/loom/internal/session"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name string

	// Bootstrap seeds the primordial topology before Nodes are created.
	Bootstrap bool

	Nodes      []string
	Edges      []EdgeSpec
	Hyperedges []HyperedgeSpec
	Phases     []Phase

	// Configure, when non-nil, adjusts the runner's configuration before
	// the session is created.
	Configure func(cfg *config.LoomConfig)
}

// EdgeSpec defines a pre-seeded edge between labelled nodes.
type EdgeSpec struct {
	From          string
	To            string
	Weight        float64
	Bidirectional bool
}

// HyperedgeSpec defines a pre-seeded hyperedge.
type HyperedgeSpec struct {
	Participants []string
	Processor    models.ProcessorType
}

// EvolveSpec starts a trajectory at the beginning of a phase. The target
// is the vector of Toward as it stands when the phase begins.
type EvolveSpec struct {
	Label    string
	Toward   string
	Duration float64
	Curve    kernel.Curve
	Rate     float64
}

// Phase is a run of ticks under fixed conditions.
type Phase struct {
	// Label is an optional human-readable tag for debugging output.
	Label string

	Ticks int

	// Stimulus pins node activations before every tick of the phase.
	Stimulus map[string]float64

	// Context is set once at the start of the phase.
	Context map[string]float64

	// Ops are queued at the start of the phase and applied by its first tick.
	Ops []kernel.Op

	Evolve []EvolveSpec

	// Before, when non-nil, is called before the phase executes.
	Before func(index int, s *session.Session)
}

// PhaseResult captures the state at the end of a phase.
type PhaseResult struct {
	Index       int
	Label       string
	Reports     []kernel.TickReport
	Weights     map[string]float64 // EdgeKey -> weight
	Temporary   map[string]bool    // EdgeKey -> flagged temporary
	Activations map[string]float64
	Hyperedges  []hyperedge.Hyperedge
	Snapshot    kernel.Snapshot
}

// Fired returns the number of hyperedge firings over the phase.
func (p PhaseResult) Fired() int {
	total := 0
	for _, r := range p.Reports {
		total += r.Fired
	}
	return total
}

// Result captures all phases and the live session.
type Result struct {
	Phases  []PhaseResult
	Session *session.Session
}

// Last returns the final phase result.
func (r Result) Last() PhaseResult {
	if len(r.Phases) == 0 {
		return PhaseResult{}
	}
	return r.Phases[len(r.Phases)-1]
}

// Ticks returns the total number of ticks run.
func (r Result) Ticks() int {
	total := 0
	for _, p := range r.Phases {
		total += len(p.Reports)
	}
	return total
}

// EdgeKey builds the canonical map key for an edge.
func EdgeKey(from, to string) string {
	return from + "->" + to
}

// Package constants provides named constants used throughout the loom codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Vector geometry constants
const (
	// DefaultDimension is the length of every node vector.
	DefaultDimension = 256

	// DefaultNodeCapacity is the number of node slots allocated up front.
	DefaultNodeCapacity = 4096

	// DefaultEdgesPerNode sizes the CSR arrays relative to node capacity.
	DefaultEdgesPerNode = 20

	// NormEpsilon is the magnitude floor below which a vector is left as-is
	// instead of being divided by its norm.
	NormEpsilon = 1e-9

	// BallRadius is the largest radius the spatial subregion may reach.
	// Coordinates beyond it are scaled back inside the open unit ball.
	BallRadius = 0.99

	// InitialBallRadius bounds the spatial spiral used at node creation.
	InitialBallRadius = 0.9

	// MaxVectorMagnitude caps hyperedge processor state.
	MaxVectorMagnitude = 1.0

	// MetaSignalScale scales the squashed connection count written into the
	// metadata subregion so it does not dominate the unit norm.
	MetaSignalScale = 0.01
)

// Edge weight constants
const (
	// MinEdgeWeight is the floor for edge weights.
	MinEdgeWeight = -1.0

	// MaxEdgeWeight is the ceiling for edge weights.
	MaxEdgeWeight = 1.0

	// BidirectionalNudge scales the pairwise update applied when a
	// bidirectional connection is created.
	BidirectionalNudge = 0.1
)

// Learning constants
const (
	// DefaultLearningRate is the Hebbian edge learning rate (eta).
	DefaultLearningRate = 0.01

	// ActivationThreshold is the activation above which a node counts as firing.
	ActivationThreshold = 0.1

	// SemanticPullFactor scales the semantic subregion pull in UpdatePair.
	SemanticPullFactor = 0.1

	// SpatialPullFactor scales the conformal spatial pull in UpdatePair.
	SpatialPullFactor = 0.01

	// FieldPullFactor scales the resonance-modulated auxiliary field pull.
	FieldPullFactor = 0.05

	// CuriosityWeight and StressWeight shape context modulation of the learning rate.
	CuriosityWeight = 0.5
	StressWeight    = 0.3
)

// Hyperedge constants
const (
	// DefaultMaxArity is the largest number of participants in a hyperedge.
	DefaultMaxArity = 6

	// DefaultProcessorDimension is the length of a processor vector.
	DefaultProcessorDimension = 128

	// DefaultMaxHyperedges is the registry capacity.
	DefaultMaxHyperedges = 1024

	// StateRetention is the share of the previous processor state kept each compute.
	StateRetention = 0.9

	// ResonanceGain is the per-active-participant amplification of RESONANCE processors.
	ResonanceGain = 0.1

	// BackpropScale scales processor state into the pairwise learning rate.
	BackpropScale = 0.01
)

// Consolidation constants
const (
	// DefaultConsolidationInterval is the number of ticks between consolidation passes.
	DefaultConsolidationInterval = 1000

	// PruneThreshold is the absolute weight below which an edge is flagged temporary.
	PruneThreshold = 10.0 / 127.0

	// UsageThreshold is the usage count above which a hyperedge is strengthened.
	UsageThreshold = 10

	// StrengthenFactor multiplies the state of a frequently used hyperedge.
	StrengthenFactor = 1.1
)

// Kernel cycle constants
const (
	// DefaultTimeStep is the integration step (dt) of one tick.
	DefaultTimeStep = 0.01

	// DefaultDiffusion is the activation diffusion coefficient.
	DefaultDiffusion = 0.1

	// CouplingThreshold is the activation product above which neighbors pull
	// on each other in force accumulation.
	CouplingThreshold = 0.25
)

// Checkpoint rotation controls how many checkpoint files are retained.
const (
	// MaxCheckpointRotation is the default maximum number of checkpoint files to keep.
	MaxCheckpointRotation = 10
)

// Context signal names read by the learning-rate modulation.
const (
	SignalStress    = "stress"
	SignalCuriosity = "curiosity"
)

// Package kernel runs a topology: it owns the vector store, the sparse
// graph, the hyperedge registry and the consolidation scheduler, and
// advances them together one tick at a time.
//
// A tick runs six phases in fixed order:
//
//  1. drain queued structural operations
//  2. accumulate forces on every node into a second buffer and swap
//  3. compute every hyperedge in id order
//  4. run the global Hebbian pass with context modulation
//  5. advance time and expire trajectories
//  6. consolidate, every Consolidation.Interval ticks
//
// No phase observes a later phase's writes from the same tick.
package kernel

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/nvandessel/loom/internal/consolidation"
	"github.com/nvandessel/loom/internal/graph"
	"github.com/nvandessel/loom/internal/hebbian"
	"github.com/nvandessel/loom/internal/hyperedge"
	"github.com/nvandessel/loom/internal/logging"
	"github.com/nvandessel/loom/internal/metrics"
	"github.com/nvandessel/loom/internal/models"
	"github.com/nvandessel/loom/internal/vecmath"
	"github.com/nvandessel/loom/internal/vecstore"
)

// Engine is a running topology. All exported methods are safe for
// concurrent use; Tick and the structural entry points serialize on one
// lock, while Enqueue only takes the queue lock.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	logger    *slog.Logger
	decisions *logging.DecisionLogger
	metrics   *metrics.Metrics

	store     *vecstore.Store
	graph     *graph.Graph
	learner   *hebbian.Engine
	registry  *hyperedge.Registry
	scheduler *consolidation.Scheduler

	back         []float64
	trajectories []Trajectory
	context      map[string]float64

	tick       uint64
	time       float64
	emergence  float64
	lastReport *consolidation.Report

	qmu   sync.Mutex
	queue []Op
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithDecisionLogger sets the JSONL decision trace.
func WithDecisionLogger(dl *logging.DecisionLogger) Option {
	return func(e *Engine) { e.decisions = dl }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an empty engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kernel config: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	e := &Engine{
		cfg:     cfg,
		context: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDiscard(e.logger)

	store, err := vecstore.New(cfg.Layout, cfg.NodeCapacity)
	if err != nil {
		return nil, err
	}
	g, err := graph.New(cfg.NodeCapacity, cfg.EdgeCapacity, cfg.Bounds)
	if err != nil {
		return nil, err
	}
	if err := e.install(store, g, nil); err != nil {
		return nil, err
	}
	return e, nil
}

// install wires the learning components to a store and graph. edges, if
// non-nil, restores a hyperedge registry.
func (e *Engine) install(store *vecstore.Store, g *graph.Graph, edges []hyperedge.Hyperedge) error {
	learner, err := hebbian.New(e.cfg.Learning, store)
	if err != nil {
		return err
	}
	var registry *hyperedge.Registry
	if edges == nil {
		registry, err = hyperedge.NewRegistry(e.cfg.Hyperedge, store, g, learner)
	} else {
		registry, err = hyperedge.Restore(e.cfg.Hyperedge, store, g, learner, edges)
	}
	if err != nil {
		return err
	}
	scheduler := e.scheduler
	if scheduler == nil {
		if scheduler, err = consolidation.New(e.cfg.Consolidation); err != nil {
			return err
		}
	}

	e.store = store
	e.graph = g
	e.learner = learner
	e.registry = registry
	e.scheduler = scheduler
	e.back = store.NewBuffer()
	return nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// CreateNode adds a node initialized from label.
func (e *Engine) CreateNode(label string) (models.NodeID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createNode(label)
}

func (e *Engine) createNode(label string) (models.NodeID, error) {
	if e.store.Len() >= e.store.Cap() {
		return 0, fmt.Errorf("create node %q: %w", label, models.ErrCapacityExceeded)
	}
	id, err := e.store.CreateNode(label)
	if err != nil {
		return 0, err
	}
	if _, err := e.graph.AddNode(); err != nil {
		return 0, err
	}
	return id, nil
}

// CreateEdge creates or updates the directed edge src->dst.
func (e *Engine) CreateEdge(src, dst models.NodeID, weight float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createEdge(src, dst, weight)
}

func (e *Engine) createEdge(src, dst models.NodeID, weight float64) error {
	created, err := e.graph.CreateEdge(src, dst, weight, 0)
	if err != nil {
		return err
	}
	if created {
		_ = e.store.AddConnection(src)
	}
	return nil
}

// CreateBidirectional creates or updates a<->b and nudges the two vectors
// toward each other in proportion to weight.
func (e *Engine) CreateBidirectional(a, b models.NodeID, weight float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createBidirectional(a, b, weight)
}

func (e *Engine) createBidirectional(a, b models.NodeID, weight float64) error {
	n, err := e.graph.CreateBidirectional(a, b, weight, 0, e.learner)
	if err != nil {
		return err
	}
	if n > 0 {
		_ = e.store.AddConnection(a)
		_ = e.store.AddConnection(b)
	}
	return nil
}

// CreateHyperedge registers a processor over participants.
func (e *Engine) CreateHyperedge(participants []models.NodeID, typ models.ProcessorType) (models.HyperedgeID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Create(participants, typ)
}

// SetActivation pins a node's activation, as a stimulus from outside.
func (e *Engine) SetActivation(id models.NodeID, a float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.SetActivation(id, a)
}

// Deactivate soft-deletes a node: it keeps its slot and edges but no
// longer takes part in the cycle.
func (e *Engine) Deactivate(id models.NodeID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Deactivate(id)
}

// SetContext overwrites named context signals. Values are clamped to
// [0, 1]; keys not named keep their last value.
func (e *Engine) SetContext(values map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range values {
		e.context[k] = vecmath.Clamp(v, 0, 1)
	}
}

// Context returns a copy of the current context signals.
func (e *Engine) Context() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.context)
}

// Lookup returns the first node created with label.
func (e *Engine) Lookup(label string) (models.NodeID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Lookup(label)
}

// Grow raises node and edge capacity. Zero leaves a capacity unchanged.
func (e *Engine) Grow(nodeCapacity, edgeCapacity int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if nodeCapacity > 0 && nodeCapacity != e.cfg.NodeCapacity {
		if err := e.store.Grow(nodeCapacity); err != nil {
			return err
		}
		if err := e.graph.GrowNodes(nodeCapacity); err != nil {
			return err
		}
		e.cfg.NodeCapacity = nodeCapacity
		e.back = e.store.NewBuffer()
	}
	if edgeCapacity > 0 && edgeCapacity != e.cfg.EdgeCapacity {
		if err := e.graph.Grow(edgeCapacity); err != nil {
			return err
		}
		e.cfg.EdgeCapacity = edgeCapacity
	}
	e.logger.Info("grew topology", "nodes", e.cfg.NodeCapacity, "edges", e.cfg.EdgeCapacity)
	return nil
}

// Validate checks the structural invariants of the graph and the unit-norm
// invariant of every node.
func (e *Engine) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.graph.Validate(); err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	for i := 0; i < e.store.Len(); i++ {
		v := e.store.View(models.NodeID(i))
		n := vecmath.Norm(v)
		if n > 1+1e-6 || (n < 1-1e-6 && n > 1e-9) {
			return fmt.Errorf("node %d has norm %v", i, n)
		}
	}
	return nil
}

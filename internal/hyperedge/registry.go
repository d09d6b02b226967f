package hyperedge

import (
	"fmt"
	"math"

	"github.com/nvandessel/loom/internal/constants"
	"github.com/nvandessel/loom/internal/graph"
	"github.com/nvandessel/loom/internal/hebbian"
	"github.com/nvandessel/loom/internal/models"
	"github.com/nvandessel/loom/internal/vecmath"
	"github.com/nvandessel/loom/internal/vecstore"
)

// Registry is the append-only set of hyperedges of a topology. It is not
// safe for concurrent use.
type Registry struct {
	cfg     Config
	store   *vecstore.Store
	graph   *graph.Graph
	learner *hebbian.Engine
	edges   []Hyperedge
}

// NewRegistry creates an empty registry bound to a store, graph and learner.
func NewRegistry(cfg Config, store *vecstore.Store, g *graph.Graph, learner *hebbian.Engine) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid hyperedge config: %w", err)
	}
	return &Registry{
		cfg:     cfg,
		store:   store,
		graph:   g,
		learner: learner,
		edges:   make([]Hyperedge, 0, min(cfg.Capacity, 64)),
	}, nil
}

// Config returns the registry configuration.
func (r *Registry) Config() Config { return r.cfg }

// Len returns the number of hyperedges.
func (r *Registry) Len() int { return len(r.edges) }

// Get returns a copy of hyperedge id.
func (r *Registry) Get(id models.HyperedgeID) (Hyperedge, bool) {
	if int(id) >= len(r.edges) {
		return Hyperedge{}, false
	}
	return r.edges[id].clone(), true
}

// All returns copies of every hyperedge in id order.
func (r *Registry) All() []Hyperedge {
	out := make([]Hyperedge, len(r.edges))
	for i := range r.edges {
		out[i] = r.edges[i].clone()
	}
	return out
}

// TotalState returns the sum of processor states.
func (r *Registry) TotalState() float64 {
	var sum float64
	for i := range r.edges {
		sum += r.edges[i].State
	}
	return sum
}

// Grow raises the registry capacity.
func (r *Registry) Grow(capacity int) error {
	if capacity < r.cfg.Capacity {
		return fmt.Errorf("grow hyperedges: new capacity %d is below current %d", capacity, r.cfg.Capacity)
	}
	r.cfg.Capacity = capacity
	return nil
}

// Create registers a hyperedge over participants.
//
// The processor vector is aggregated from the participants: the first
// quarter averages sampled identity coordinates, the middle half holds
// pairwise relational features (mean cosine similarity and mean inverse
// distance, cycling through subregions), and the last quarter repeats a
// group coherence scalar. A processor node is appended to the store and
// connected to every participant with a bidirectional edge of weight
// 1/arity flagged FlagHyperedge.
func (r *Registry) Create(participants []models.NodeID, typ models.ProcessorType) (models.HyperedgeID, error) {
	arity := len(participants)
	if arity < 2 || arity > r.cfg.MaxArity {
		return 0, fmt.Errorf("arity %d outside [2, %d]: %w", arity, r.cfg.MaxArity, models.ErrInvalidHyperedge)
	}
	if !typ.Valid() {
		return 0, fmt.Errorf("processor type %d: %w", typ, models.ErrInvalidHyperedge)
	}
	seen := make(map[models.NodeID]struct{}, arity)
	for _, p := range participants {
		if _, dup := seen[p]; dup {
			return 0, fmt.Errorf("participant %d listed twice: %w", p, models.ErrInvalidHyperedge)
		}
		seen[p] = struct{}{}
		if r.store.View(p) == nil {
			return 0, fmt.Errorf("participant %d: %w", p, models.ErrInvalidIndex)
		}
	}
	if len(r.edges) >= r.cfg.Capacity {
		return 0, fmt.Errorf("hyperedge registry holds %d: %w", r.cfg.Capacity, models.ErrCapacityExceeded)
	}
	if r.store.Len() >= r.store.Cap() || r.graph.Nodes() >= r.graph.NodeCap() {
		return 0, fmt.Errorf("no node slot for processor: %w", models.ErrCapacityExceeded)
	}
	if r.graph.Cap()-r.graph.Len() < 2*arity {
		return 0, fmt.Errorf("no edge room for %d Levi edges: %w", 2*arity, models.ErrCapacityExceeded)
	}

	id := models.HyperedgeID(len(r.edges))
	proc, err := r.store.CreateNode(fmt.Sprintf("hyperedge:%d", id))
	if err != nil {
		return 0, err
	}
	if _, err := r.graph.AddNode(); err != nil {
		return 0, err
	}
	r.store.MarkProcessor(proc)
	r.centerProcessorNode(proc, participants)

	h := Hyperedge{
		ID:           id,
		Participants: append([]models.NodeID(nil), participants...),
		Type:         typ,
		Vector:       r.initialVector(participants),
		Processor:    proc,
	}
	r.edges = append(r.edges, h)

	w := 1 / float64(arity)
	for _, p := range participants {
		n, err := r.graph.CreateBidirectional(proc, p, w, models.FlagHyperedge, r.pairLearner())
		if err != nil {
			return id, fmt.Errorf("wire processor %d to participant %d: %w", proc, p, err)
		}
		if n > 0 {
			_ = r.store.AddConnection(proc)
			_ = r.store.AddConnection(p)
		}
	}
	_ = r.store.SetActivation(proc, 0)
	return id, nil
}

// pairLearner returns the learner as an interface, or nil without one.
func (r *Registry) pairLearner() graph.PairLearner {
	if r.learner == nil {
		return nil
	}
	return r.learner
}

// centerProcessorNode moves the processor node's spatial and semantic
// subregions to the participants' centroid so it starts among them.
func (r *Registry) centerProcessorNode(proc models.NodeID, participants []models.NodeID) {
	layout := r.store.Layout()
	v := r.store.View(proc)
	for _, region := range []vecstore.Region{layout.Spatial, layout.Semantic} {
		dst := region.Slice(v)
		clear(dst)
		for _, p := range participants {
			src := region.Slice(r.store.View(p))
			for i := range dst {
				dst[i] += src[i]
			}
		}
		for i := range dst {
			dst[i] /= float64(len(participants))
		}
	}
	r.store.Finalize(proc)
}

func (r *Registry) initialVector(participants []models.NodeID) []float64 {
	dim := r.cfg.ProcessorDim
	out := make([]float64, dim)
	layout := r.store.Layout()
	n := float64(len(participants))

	quarter := dim / 4
	for d := 0; d < quarter; d++ {
		idx := layout.Identity.Start + d%layout.Identity.Len
		var sum float64
		for _, p := range participants {
			sum += r.store.View(p)[idx]
		}
		out[d] = sum / n
	}

	regions := []vecstore.Region{layout.Semantic, layout.Spatial, layout.Field, layout.Identity}
	cosines := make([]float64, len(regions))
	invDists := make([]float64, len(regions))
	for k, region := range regions {
		cosines[k], invDists[k] = pairwiseFeatures(r.store, region, participants)
	}
	middle := quarter + dim/2
	for d := quarter; d < middle; d++ {
		k := (d - quarter) / 2 % len(regions)
		if (d-quarter)%2 == 0 {
			out[d] = cosines[k]
		} else {
			out[d] = invDists[k]
		}
	}

	fullCos, _ := pairwiseFeatures(r.store, vecstore.Region{Start: 0, Len: layout.Dimension}, participants)
	coherence := (fullCos + 1) / 2 / math.Sqrt(n)
	for d := middle; d < dim; d++ {
		out[d] = coherence
	}

	if vecmath.Norm(out) > constants.MaxVectorMagnitude {
		vecmath.Normalize(out, constants.NormEpsilon)
	}
	return out
}

// pairwiseFeatures returns the mean cosine similarity and mean inverse
// distance 1/(1+d) over all unordered participant pairs within region.
func pairwiseFeatures(s *vecstore.Store, region vecstore.Region, participants []models.NodeID) (float64, float64) {
	var cos, inv float64
	pairs := 0
	for i := 0; i < len(participants); i++ {
		a := region.Slice(s.View(participants[i]))
		for j := i + 1; j < len(participants); j++ {
			b := region.Slice(s.View(participants[j]))
			cos += vecmath.CosineSimilarity(a, b)
			inv += 1 / (1 + vecmath.Distance(a, b))
			pairs++
		}
	}
	if pairs == 0 {
		return 0, 0
	}
	return cos / float64(pairs), inv / float64(pairs)
}

// Restore rebuilds a registry from persisted hyperedges. Participants and
// processor nodes must already exist in store. A hyperedge with an unknown
// processor type, an arity outside the configured bounds or a processor
// vector of the wrong length fails with models.ErrFormatMismatch.
func Restore(cfg Config, store *vecstore.Store, g *graph.Graph, learner *hebbian.Engine, edges []Hyperedge) (*Registry, error) {
	r, err := NewRegistry(cfg, store, g, learner)
	if err != nil {
		return nil, err
	}
	if len(edges) > cfg.Capacity {
		return nil, fmt.Errorf("restore %d hyperedges into %d slots: %w", len(edges), cfg.Capacity, models.ErrCapacityExceeded)
	}
	for i, h := range edges {
		if h.ID != models.HyperedgeID(i) {
			return nil, fmt.Errorf("restore: hyperedge at position %d has id %d", i, h.ID)
		}
		if !h.Type.Valid() {
			return nil, fmt.Errorf("restore hyperedge %d: unknown processor type %d: %w", i, h.Type, models.ErrFormatMismatch)
		}
		if n := len(h.Participants); n < 2 || n > cfg.MaxArity {
			return nil, fmt.Errorf("restore hyperedge %d: arity %d outside [2, %d]: %w", i, n, cfg.MaxArity, models.ErrFormatMismatch)
		}
		if len(h.Vector) != cfg.ProcessorDim {
			return nil, fmt.Errorf("restore hyperedge %d: vector has %d dimensions, want %d: %w", i, len(h.Vector), cfg.ProcessorDim, models.ErrFormatMismatch)
		}
		if store.View(h.Processor) == nil {
			return nil, fmt.Errorf("restore hyperedge %d processor %d: %w", i, h.Processor, models.ErrInvalidIndex)
		}
		for _, p := range h.Participants {
			if store.View(p) == nil {
				return nil, fmt.Errorf("restore hyperedge %d participant %d: %w", i, p, models.ErrInvalidIndex)
			}
		}
		store.MarkProcessor(h.Processor)
		r.edges = append(r.edges, h.clone())
	}
	return r, nil
}

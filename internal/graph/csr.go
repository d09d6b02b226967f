// Package graph stores the directed weighted adjacency of a topology in
// compressed sparse row form.
//
// Row i occupies colIdx[rowPtr[i]:rowPtr[i+1]]. New edges are inserted at
// the end of their source row, which shifts every later entry by one slot.
// Insertion is therefore O(E) in the worst case; the kernel batches
// structural changes into the first phase of a tick to keep that cost out
// of the learning loop.
package graph

import (
	"fmt"
	"math"

	"github.com/nvandessel/loom/internal/constants"
	"github.com/nvandessel/loom/internal/models"
)

// PairLearner adjusts the vectors of two nodes toward each other.
// The hebbian engine implements it; the graph only calls it when a
// bidirectional connection is created.
type PairLearner interface {
	UpdatePair(a, b models.NodeID, rate float64) error
}

// Bounds are the inclusive limits every edge weight is clamped to.
type Bounds struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// DefaultBounds returns the [-1, 1] weight range.
func DefaultBounds() Bounds {
	return Bounds{Min: constants.MinEdgeWeight, Max: constants.MaxEdgeWeight}
}

// Clamp bounds w. NaN and infinities collapse to the lower bound.
func (b Bounds) Clamp(w float64) float64 {
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return b.Min
	}
	if w < b.Min {
		return b.Min
	}
	if w > b.Max {
		return b.Max
	}
	return w
}

// Row is a borrowed view of one source row. The slices alias the graph and
// are invalidated by any structural change.
type Row struct {
	Start   int
	Targets []models.NodeID
	Weights []float64
	Flags   []models.EdgeFlag
}

// Graph is a CSR adjacency with fixed node and edge capacity. It is not safe
// for concurrent mutation.
type Graph struct {
	bounds Bounds
	nodes  int // nodes that may be referenced
	count  int // edges in use
	rowPtr []uint32
	colIdx []models.NodeID
	values []float64
	flags  []models.EdgeFlag
}

// New allocates an empty graph for nodeCapacity nodes and edgeCapacity edges.
func New(nodeCapacity, edgeCapacity int, bounds Bounds) (*Graph, error) {
	if nodeCapacity <= 0 || edgeCapacity <= 0 {
		return nil, fmt.Errorf("capacities must be positive, got nodes=%d edges=%d", nodeCapacity, edgeCapacity)
	}
	if bounds.Min > bounds.Max {
		return nil, fmt.Errorf("weight bounds inverted: min %v > max %v", bounds.Min, bounds.Max)
	}
	return &Graph{
		bounds: bounds,
		rowPtr: make([]uint32, nodeCapacity+1),
		colIdx: make([]models.NodeID, edgeCapacity),
		values: make([]float64, edgeCapacity),
		flags:  make([]models.EdgeFlag, edgeCapacity),
	}, nil
}

// Bounds returns the weight limits.
func (g *Graph) Bounds() Bounds { return g.bounds }

// Len returns the number of stored edges, temporary ones included.
func (g *Graph) Len() int { return g.count }

// Cap returns the edge capacity.
func (g *Graph) Cap() int { return len(g.colIdx) }

// NodeCap returns the node capacity.
func (g *Graph) NodeCap() int { return len(g.rowPtr) - 1 }

// Nodes returns the number of nodes edges may reference.
func (g *Graph) Nodes() int { return g.nodes }

// AddNode makes the next node index addressable and returns it.
func (g *Graph) AddNode() (models.NodeID, error) {
	if g.nodes >= g.NodeCap() {
		return 0, fmt.Errorf("graph node %d: %w", g.nodes, models.ErrCapacityExceeded)
	}
	g.nodes++
	return models.NodeID(g.nodes - 1), nil
}

// SetNodes sets the number of addressable nodes.
func (g *Graph) SetNodes(n int) error {
	if n < 0 || n > g.NodeCap() {
		return fmt.Errorf("set nodes %d of %d: %w", n, g.NodeCap(), models.ErrCapacityExceeded)
	}
	g.nodes = n
	return nil
}

// CreateEdge inserts src->dst or, if the edge exists, overwrites its weight
// and merges flags. A re-created edge is no longer temporary. It reports
// whether a new entry was inserted.
func (g *Graph) CreateEdge(src, dst models.NodeID, weight float64, flags models.EdgeFlag) (bool, error) {
	if err := g.checkPair(src, dst); err != nil {
		return false, err
	}
	if i := g.find(src, dst); i >= 0 {
		g.values[i] = g.bounds.Clamp(weight)
		g.flags[i] = (g.flags[i] | flags) &^ models.FlagTemporary
		return false, nil
	}
	if g.count >= len(g.colIdx) {
		return false, fmt.Errorf("edge %d->%d: %d of %d edges used: %w", src, dst, g.count, len(g.colIdx), models.ErrCapacityExceeded)
	}
	g.insert(src, dst, g.bounds.Clamp(weight), flags)
	return true, nil
}

// CreateBidirectional creates a->b and b->a with equal weight, both flagged
// bidirectional, then nudges the two vectors together through learner.
// Either both edges are written or neither is. learner may be nil.
func (g *Graph) CreateBidirectional(a, b models.NodeID, weight float64, extra models.EdgeFlag, learner PairLearner) (int, error) {
	if err := g.checkPair(a, b); err != nil {
		return 0, err
	}
	if a == b {
		return 0, fmt.Errorf("bidirectional edge %d<->%d: self loop: %w", a, b, models.ErrInvalidIndex)
	}
	need := 0
	if g.find(a, b) < 0 {
		need++
	}
	if g.find(b, a) < 0 {
		need++
	}
	if g.count+need > len(g.colIdx) {
		return 0, fmt.Errorf("bidirectional edge %d<->%d: %w", a, b, models.ErrCapacityExceeded)
	}

	flags := models.FlagBidirectional | extra
	inserted := 0
	for _, p := range [2][2]models.NodeID{{a, b}, {b, a}} {
		created, err := g.CreateEdge(p[0], p[1], weight, flags)
		if err != nil {
			return inserted, err
		}
		if created {
			inserted++
		}
	}
	if learner != nil {
		if err := learner.UpdatePair(a, b, weight*constants.BidirectionalNudge); err != nil {
			return inserted, fmt.Errorf("bidirectional edge %d<->%d: %w", a, b, err)
		}
	}
	return inserted, nil
}

// Row returns the outgoing edges of id, or an empty row if id is out of range.
func (g *Graph) Row(id models.NodeID) Row {
	if int(id) >= g.nodes {
		return Row{}
	}
	s, e := g.rowPtr[id], g.rowPtr[id+1]
	return Row{
		Start:   int(s),
		Targets: g.colIdx[s:e:e],
		Weights: g.values[s:e:e],
		Flags:   g.flags[s:e:e],
	}
}

// Neighbors returns the targets and weights of id's outgoing edges.
func (g *Graph) Neighbors(id models.NodeID) ([]models.NodeID, []float64) {
	r := g.Row(id)
	return r.Targets, r.Weights
}

// Degree returns the number of outgoing edges of id.
func (g *Graph) Degree(id models.NodeID) int {
	if int(id) >= g.nodes {
		return 0
	}
	return int(g.rowPtr[id+1] - g.rowPtr[id])
}

// Weight returns the weight of src->dst.
func (g *Graph) Weight(src, dst models.NodeID) (float64, bool) {
	if g.checkPair(src, dst) != nil {
		return 0, false
	}
	if i := g.find(src, dst); i >= 0 {
		return g.values[i], true
	}
	return 0, false
}

// Flags returns the flag bits of src->dst.
func (g *Graph) Flags(src, dst models.NodeID) (models.EdgeFlag, bool) {
	if g.checkPair(src, dst) != nil {
		return 0, false
	}
	if i := g.find(src, dst); i >= 0 {
		return g.flags[i], true
	}
	return 0, false
}

// SetWeight overwrites the weight of an existing edge.
func (g *Graph) SetWeight(src, dst models.NodeID, w float64) error {
	i, err := g.index(src, dst)
	if err != nil {
		return err
	}
	g.values[i] = g.bounds.Clamp(w)
	return nil
}

// AddWeight adds delta to an existing edge and returns the clamped result.
func (g *Graph) AddWeight(src, dst models.NodeID, delta float64) (float64, error) {
	i, err := g.index(src, dst)
	if err != nil {
		return 0, err
	}
	return g.AddWeightAt(i, delta), nil
}

// AddWeightAt adds delta to the edge stored at position i.
func (g *Graph) AddWeightAt(i int, delta float64) float64 {
	g.values[i] = g.bounds.Clamp(g.values[i] + delta)
	return g.values[i]
}

// WeightAt returns the weight stored at position i.
func (g *Graph) WeightAt(i int) float64 { return g.values[i] }

// FlagsAt returns the flags stored at position i.
func (g *Graph) FlagsAt(i int) models.EdgeFlag { return g.flags[i] }

// MarkTemporary flags src->dst for removal at the next compaction.
func (g *Graph) MarkTemporary(src, dst models.NodeID) error {
	i, err := g.index(src, dst)
	if err != nil {
		return err
	}
	g.flags[i] |= models.FlagTemporary
	return nil
}

// MarkTemporaryAt flags the edge at position i and reports whether it was
// newly flagged.
func (g *Graph) MarkTemporaryAt(i int) bool {
	if g.flags[i].Has(models.FlagTemporary) {
		return false
	}
	g.flags[i] |= models.FlagTemporary
	return true
}

// ClearTemporaryAt removes the temporary flag from the edge at position i
// and reports whether it was set.
func (g *Graph) ClearTemporaryAt(i int) bool {
	if !g.flags[i].Has(models.FlagTemporary) {
		return false
	}
	g.flags[i] &^= models.FlagTemporary
	return true
}

// CountTemporary returns the number of edges awaiting compaction.
func (g *Graph) CountTemporary() int {
	n := 0
	for _, f := range g.flags[:g.count] {
		if f.Has(models.FlagTemporary) {
			n++
		}
	}
	return n
}

// Compact removes every temporary edge and rebuilds rowPtr. It returns the
// number of edges removed.
func (g *Graph) Compact() int {
	w := 0
	nodeCap := g.NodeCap()
	start := uint32(0)
	for row := 0; row < nodeCap; row++ {
		end := g.rowPtr[row+1]
		for i := start; i < end; i++ {
			if g.flags[i].Has(models.FlagTemporary) {
				continue
			}
			g.colIdx[w] = g.colIdx[i]
			g.values[w] = g.values[i]
			g.flags[w] = g.flags[i]
			w++
		}
		start = end
		g.rowPtr[row+1] = uint32(w)
	}
	removed := g.count - w
	clear(g.colIdx[w:g.count])
	clear(g.values[w:g.count])
	clear(g.flags[w:g.count])
	g.count = w
	return removed
}

// Validate checks the CSR invariants: rowPtr starts at zero, never
// decreases and ends at the edge count; every target is addressable;
// no row holds a target twice; every weight is inside the bounds.
func (g *Graph) Validate() error {
	if g.rowPtr[0] != 0 {
		return fmt.Errorf("rowPtr[0] = %d, want 0", g.rowPtr[0])
	}
	nodeCap := g.NodeCap()
	for i := 0; i < nodeCap; i++ {
		if g.rowPtr[i+1] < g.rowPtr[i] {
			return fmt.Errorf("rowPtr decreases at row %d: %d < %d", i, g.rowPtr[i+1], g.rowPtr[i])
		}
	}
	if int(g.rowPtr[nodeCap]) != g.count {
		return fmt.Errorf("rowPtr[%d] = %d, want edge count %d", nodeCap, g.rowPtr[nodeCap], g.count)
	}
	for row := 0; row < nodeCap; row++ {
		s, e := g.rowPtr[row], g.rowPtr[row+1]
		if s != e && row >= g.nodes {
			return fmt.Errorf("row %d has edges but only %d nodes exist", row, g.nodes)
		}
		seen := make(map[models.NodeID]struct{}, e-s)
		for i := s; i < e; i++ {
			dst := g.colIdx[i]
			if int(dst) >= g.nodes {
				return fmt.Errorf("edge %d->%d targets a missing node", row, dst)
			}
			if _, dup := seen[dst]; dup {
				return fmt.Errorf("duplicate edge %d->%d", row, dst)
			}
			seen[dst] = struct{}{}
			if w := g.values[i]; w < g.bounds.Min || w > g.bounds.Max || math.IsNaN(w) {
				return fmt.Errorf("edge %d->%d weight %v outside [%v, %v]", row, dst, w, g.bounds.Min, g.bounds.Max)
			}
		}
	}
	return nil
}

// Grow enlarges the edge arrays to edgeCapacity entries.
func (g *Graph) Grow(edgeCapacity int) error {
	if edgeCapacity < len(g.colIdx) {
		return fmt.Errorf("grow edges: new capacity %d is below current %d", edgeCapacity, len(g.colIdx))
	}
	extra := edgeCapacity - len(g.colIdx)
	g.colIdx = append(g.colIdx, make([]models.NodeID, extra)...)
	g.values = append(g.values, make([]float64, extra)...)
	g.flags = append(g.flags, make([]models.EdgeFlag, extra)...)
	return nil
}

// GrowNodes enlarges rowPtr to nodeCapacity rows. New rows are empty.
func (g *Graph) GrowNodes(nodeCapacity int) error {
	old := g.NodeCap()
	if nodeCapacity < old {
		return fmt.Errorf("grow nodes: new capacity %d is below current %d", nodeCapacity, old)
	}
	tail := g.rowPtr[old]
	for i := old; i < nodeCapacity; i++ {
		g.rowPtr = append(g.rowPtr, tail)
	}
	return nil
}

// RowPtr returns the live row pointer array.
func (g *Graph) RowPtr() []uint32 { return g.rowPtr }

// Edges returns views of the used prefix of the edge arrays.
func (g *Graph) Edges() ([]models.NodeID, []float64, []models.EdgeFlag) {
	return g.colIdx[:g.count], g.values[:g.count], g.flags[:g.count]
}

// Restore rebuilds a graph from persisted arrays and validates it.
func Restore(nodes, edgeCapacity int, bounds Bounds, rowPtr []uint32, colIdx []models.NodeID, values []float64, flags []models.EdgeFlag) (*Graph, error) {
	if len(rowPtr) < 2 {
		return nil, fmt.Errorf("restore: row pointer too short")
	}
	g, err := New(len(rowPtr)-1, edgeCapacity, bounds)
	if err != nil {
		return nil, err
	}
	if len(colIdx) != len(values) || len(colIdx) != len(flags) {
		return nil, fmt.Errorf("restore: edge arrays differ in length (%d, %d, %d)", len(colIdx), len(values), len(flags))
	}
	if len(colIdx) > edgeCapacity {
		return nil, fmt.Errorf("restore %d edges into %d slots: %w", len(colIdx), edgeCapacity, models.ErrCapacityExceeded)
	}
	if err := g.SetNodes(nodes); err != nil {
		return nil, err
	}
	copy(g.rowPtr, rowPtr)
	copy(g.colIdx, colIdx)
	copy(g.values, values)
	copy(g.flags, flags)
	g.count = len(colIdx)
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return g, nil
}

func (g *Graph) insert(src, dst models.NodeID, w float64, flags models.EdgeFlag) {
	at := int(g.rowPtr[src+1])
	copy(g.colIdx[at+1:g.count+1], g.colIdx[at:g.count])
	copy(g.values[at+1:g.count+1], g.values[at:g.count])
	copy(g.flags[at+1:g.count+1], g.flags[at:g.count])
	g.colIdx[at] = dst
	g.values[at] = w
	g.flags[at] = flags
	g.count++
	for i := int(src) + 1; i < len(g.rowPtr); i++ {
		g.rowPtr[i]++
	}
}

func (g *Graph) find(src, dst models.NodeID) int {
	s, e := g.rowPtr[src], g.rowPtr[src+1]
	for i := s; i < e; i++ {
		if g.colIdx[i] == dst {
			return int(i)
		}
	}
	return -1
}

func (g *Graph) index(src, dst models.NodeID) (int, error) {
	if err := g.checkPair(src, dst); err != nil {
		return -1, err
	}
	i := g.find(src, dst)
	if i < 0 {
		return -1, fmt.Errorf("no edge %d->%d: %w", src, dst, models.ErrInvalidIndex)
	}
	return i, nil
}

func (g *Graph) checkPair(src, dst models.NodeID) error {
	if int(src) >= g.nodes || int(dst) >= g.nodes {
		return fmt.Errorf("edge %d->%d with %d nodes: %w", src, dst, g.nodes, models.ErrInvalidIndex)
	}
	return nil
}

// Package vecstore holds the node vectors of a topology in one flat arena.
// Nodes are addressed by stable integer index; the store never hands out
// pointers that outlive a call except through View, which the kernel uses
// for read-only phases.
package vecstore

import (
	"fmt"
	"math"

	"github.com/tidwall/btree"

	"github.com/nvandessel/loom/internal/constants"
	"github.com/nvandessel/loom/internal/models"
	"github.com/nvandessel/loom/internal/vecmath"
)

// Store is a fixed-capacity arena of node vectors. It is not safe for
// concurrent mutation; the kernel serializes access.
type Store struct {
	layout   Layout
	capacity int
	count    int
	data     []float64 // capacity * layout.Dimension

	connections []uint32
	processor   []bool
	names       []string
	labels      btree.Map[string, models.NodeID]
}

// New allocates a store for capacity nodes of the given layout.
func New(layout Layout, capacity int) (*Store, error) {
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}
	return &Store{
		layout:      layout,
		capacity:    capacity,
		data:        make([]float64, capacity*layout.Dimension),
		connections: make([]uint32, capacity),
		processor:   make([]bool, capacity),
		names:       make([]string, capacity),
	}, nil
}

// Layout returns the subregion layout of every vector in the store.
func (s *Store) Layout() Layout { return s.layout }

// Len returns the number of created nodes.
func (s *Store) Len() int { return s.count }

// Cap returns the number of node slots.
func (s *Store) Cap() int { return s.capacity }

// CreateNode allocates the next node and initializes it deterministically
// from the label's hash. Labels are indexed on first use; a repeated label
// still creates a new node but Lookup keeps returning the first one.
func (s *Store) CreateNode(label string) (models.NodeID, error) {
	if s.count >= s.capacity {
		return 0, fmt.Errorf("create node %q: %d of %d slots used: %w", label, s.count, s.capacity, models.ErrCapacityExceeded)
	}
	id := models.NodeID(s.count)
	s.count++

	v := s.vector(id)
	initializeVector(v, s.layout, HashLabel(label))
	s.finalize(v)

	s.names[id] = label
	if label != "" {
		if _, exists := s.labels.Get(label); !exists {
			s.labels.Set(label, id)
		}
	}
	return id, nil
}

// Normalize rescales the node vector to unit norm. A vector whose norm is
// below NormEpsilon is left at its current value.
func (s *Store) Normalize(id models.NodeID) error {
	if err := s.check(id); err != nil {
		return err
	}
	vecmath.Normalize(s.vector(id), constants.NormEpsilon)
	return nil
}

// Get returns a copy of the node vector.
func (s *Store) Get(id models.NodeID) ([]float64, error) {
	if err := s.check(id); err != nil {
		return nil, err
	}
	out := make([]float64, s.layout.Dimension)
	copy(out, s.vector(id))
	return out, nil
}

// Set overwrites the node vector, re-projects the spatial subregion and
// renormalizes.
func (s *Store) Set(id models.NodeID, v []float64) error {
	if err := s.check(id); err != nil {
		return err
	}
	if len(v) != s.layout.Dimension {
		return fmt.Errorf("set node %d: vector has %d dimensions, want %d", id, len(v), s.layout.Dimension)
	}
	dst := s.vector(id)
	copy(dst, v)
	s.finalize(dst)
	return nil
}

// View returns the live vector of a node, or nil if id is out of range.
// The slice aliases the arena and must not be retained across mutations.
func (s *Store) View(id models.NodeID) []float64 {
	if s.check(id) != nil {
		return nil
	}
	return s.vector(id)
}

// Finalize re-projects and renormalizes a node after an in-place edit made
// through View.
func (s *Store) Finalize(id models.NodeID) {
	if s.check(id) == nil {
		s.finalize(s.vector(id))
	}
}

// Activation returns the activation scalar of a node, or 0 if id is out of range.
func (s *Store) Activation(id models.NodeID) float64 {
	if s.check(id) != nil {
		return 0
	}
	return s.vector(id)[s.layout.activationIndex()]
}

// SetActivation pins the activation scalar to a (clamped to [0, 1]) and
// rescales the rest of the vector so the full norm stays at 1.
func (s *Store) SetActivation(id models.NodeID, a float64) error {
	if err := s.check(id); err != nil {
		return err
	}
	PinActivation(s.vector(id), s.layout, a)
	return nil
}

// PinActivation writes activation a into v and rescales every other
// component so that the norm of v is 1. If the rest of v is degenerate only
// the activation scalar is written. a is capped just below 1 so the rest of
// the vector keeps a nonzero share of the norm: pinning full activation
// shrinks the node's content but never erases its direction, and a later
// lower pin scales it back up.
func PinActivation(v []float64, layout Layout, a float64) {
	a = min(vecmath.Clamp(a, 0, 1), maxPinnedActivation)
	idx := layout.activationIndex()
	v[idx] = 0
	rest := vecmath.Norm(v)
	if rest >= constants.NormEpsilon {
		scale := math.Sqrt(1-a*a) / rest
		for i := range v {
			v[i] *= scale
		}
	}
	v[idx] = a
	vecmath.ProjectToBall(layout.Spatial.Slice(v), constants.BallRadius)
}

// IsActive reports whether the node's metadata active flag is set.
func (s *Store) IsActive(id models.NodeID) bool {
	if s.check(id) != nil {
		return false
	}
	return s.vector(id)[s.layout.Metadata.Start+MetaActive] > 0
}

// Deactivate clears the active flag. Nodes are never destroyed.
func (s *Store) Deactivate(id models.NodeID) error {
	return s.setFlag(id, 0)
}

// Reactivate sets the active flag again.
func (s *Store) Reactivate(id models.NodeID) error {
	return s.setFlag(id, 1)
}

func (s *Store) setFlag(id models.NodeID, value float64) error {
	if err := s.check(id); err != nil {
		return err
	}
	v := s.vector(id)
	v[s.layout.Metadata.Start+MetaActive] = value
	s.finalize(v)
	return nil
}

// AddConnection increments the node's connection counter and refreshes
// the squashed copy kept in the metadata subregion.
func (s *Store) AddConnection(id models.NodeID) error {
	if err := s.check(id); err != nil {
		return err
	}
	s.connections[id]++
	s.writeConnectionSignal(id)
	s.finalize(s.vector(id))
	return nil
}

// SetConnections restores a connection counter without renormalizing, for
// use after loading a persisted topology.
func (s *Store) SetConnections(id models.NodeID, c uint32) {
	if s.check(id) == nil {
		s.connections[id] = c
	}
}

// Connections returns the node's connection counter.
func (s *Store) Connections(id models.NodeID) uint32 {
	if s.check(id) != nil {
		return 0
	}
	return s.connections[id]
}

func (s *Store) writeConnectionSignal(id models.NodeID) {
	c := float64(s.connections[id])
	s.vector(id)[s.layout.Metadata.Start+MetaConnections] = constants.MetaSignalScale * c / (1 + c)
}

// MarkProcessor records that the node backs a hyperedge processor.
func (s *Store) MarkProcessor(id models.NodeID) {
	if s.check(id) == nil {
		s.processor[id] = true
	}
}

// IsProcessor reports whether the node backs a hyperedge processor.
func (s *Store) IsProcessor(id models.NodeID) bool {
	return s.check(id) == nil && s.processor[id]
}

// Lookup returns the first node created with label.
func (s *Store) Lookup(label string) (models.NodeID, bool) {
	return s.labels.Get(label)
}

// Label returns the label a node was created with.
func (s *Store) Label(id models.NodeID) string {
	if s.check(id) != nil {
		return ""
	}
	return s.names[id]
}

// Labels returns all indexed labels in lexical order.
func (s *Store) Labels() []string {
	out := make([]string, 0, s.labels.Len())
	s.labels.Scan(func(label string, _ models.NodeID) bool {
		out = append(out, label)
		return true
	})
	return out
}

// Grow enlarges the store to capacity slots. Shrinking is not supported.
func (s *Store) Grow(capacity int) error {
	if capacity < s.capacity {
		return fmt.Errorf("grow: new capacity %d is below current %d", capacity, s.capacity)
	}
	if capacity == s.capacity {
		return nil
	}
	data := make([]float64, capacity*s.layout.Dimension)
	copy(data, s.data)
	s.data = data
	s.connections = append(s.connections, make([]uint32, capacity-s.capacity)...)
	s.processor = append(s.processor, make([]bool, capacity-s.capacity)...)
	s.names = append(s.names, make([]string, capacity-s.capacity)...)
	s.capacity = capacity
	return nil
}

// Data returns the live arena, capacity*Dimension values long.
func (s *Store) Data() []float64 { return s.data }

// NewBuffer returns a zeroed arena-sized buffer for double buffering.
func (s *Store) NewBuffer() []float64 { return make([]float64, len(s.data)) }

// Swap installs buf as the live arena and returns the previous one.
// buf must be exactly as long as the current arena.
func (s *Store) Swap(buf []float64) ([]float64, error) {
	if len(buf) != len(s.data) {
		return nil, fmt.Errorf("swap: buffer has %d values, want %d", len(buf), len(s.data))
	}
	old := s.data
	s.data = buf
	return old, nil
}

// Restore rebuilds a store from persisted records. data holds count
// vectors back to back; names and processors may be shorter than count.
func Restore(layout Layout, capacity int, data []float64, count int, names []string, processors []models.NodeID) (*Store, error) {
	s, err := New(layout, capacity)
	if err != nil {
		return nil, err
	}
	if count > capacity {
		return nil, fmt.Errorf("restore %d nodes into %d slots: %w", count, capacity, models.ErrCapacityExceeded)
	}
	if len(data) != count*layout.Dimension {
		return nil, fmt.Errorf("restore: %d values for %d nodes of dimension %d", len(data), count, layout.Dimension)
	}
	copy(s.data, data)
	s.count = count
	for i, name := range names {
		if i >= count {
			break
		}
		s.names[i] = name
		if name != "" {
			if _, exists := s.labels.Get(name); !exists {
				s.labels.Set(name, models.NodeID(i))
			}
		}
	}
	for _, id := range processors {
		s.MarkProcessor(id)
	}
	return s, nil
}

func (s *Store) vector(id models.NodeID) []float64 {
	d := s.layout.Dimension
	off := int(id) * d
	return s.data[off : off+d : off+d]
}

// finalize applies the ball and unit-norm constraints to v.
func (s *Store) finalize(v []float64) {
	Constrain(v, s.layout)
}

// Constrain projects the spatial subregion into the open ball and
// renormalizes v. The projection runs again after normalization because
// scaling up a short vector can push the spatial part outward.
func Constrain(v []float64, layout Layout) {
	spatial := layout.Spatial.Slice(v)
	vecmath.ProjectToBall(spatial, constants.BallRadius)
	vecmath.Normalize(v, constants.NormEpsilon)
	vecmath.ProjectToBall(spatial, constants.BallRadius)
}

// maxPinnedActivation leaves a norm share of 1e-3 for the rest of an active vector.
var maxPinnedActivation = math.Sqrt(1 - 1e-6)

func (s *Store) check(id models.NodeID) error {
	if int(id) >= s.count {
		return fmt.Errorf("node %d (have %d): %w", id, s.count, models.ErrInvalidIndex)
	}
	return nil
}

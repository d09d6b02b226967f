package vecstore

import (
	"fmt"

	"github.com/nvandessel/loom/internal/constants"
)

// Region is a half-open [Start, Start+Len) span of a node vector.
type Region struct {
	Start int `json:"start" yaml:"start"`
	Len   int `json:"len" yaml:"len"`
}

// End returns the exclusive end offset of the region.
func (r Region) End() int { return r.Start + r.Len }

// Slice returns the region's window of v.
func (r Region) Slice(v []float64) []float64 { return v[r.Start:r.End()] }

// Layout partitions a node vector into named subregions. Boundaries are
// configuration, never literal offsets in the learning code.
type Layout struct {
	Dimension   int    `json:"dimension" yaml:"dimension"`
	Identity    Region `json:"identity" yaml:"identity"`
	Spatial     Region `json:"spatial" yaml:"spatial"`
	Semantic    Region `json:"semantic" yaml:"semantic"`
	Activation  Region `json:"activation" yaml:"activation"`
	Connections Region `json:"connections" yaml:"connections"`
	Field       Region `json:"field" yaml:"field"`
	Metadata    Region `json:"metadata" yaml:"metadata"`
}

// Metadata slots.
const (
	MetaActive      = 0 // > 0 means the node takes part in the cycle
	MetaConnections = 1 // squashed connection count
)

// regionWeights are the subregion sizes of the 256-dimension reference layout.
var regionWeights = [7]int{4, 16, 64, 64, 64, 32, 12}

// minRegion is the smallest size of each subregion in a scaled layout.
var minRegion = [7]int{1, 2, 2, 1, 1, 1, 2}

// DefaultLayout returns the reference 256-dimension layout.
func DefaultLayout() Layout {
	l, _ := ScaledLayout(constants.DefaultDimension)
	return l
}

// ScaledLayout distributes dim across the subregions in the same proportions
// as the reference layout. Rounding slack goes to the semantic region.
func ScaledLayout(dim int) (Layout, error) {
	var sizes [7]int
	total := 0
	for i, w := range regionWeights {
		sizes[i] = dim * w / constants.DefaultDimension
		if sizes[i] < minRegion[i] {
			sizes[i] = minRegion[i]
		}
		total += sizes[i]
	}
	sizes[2] += dim - total
	if sizes[2] < minRegion[2] {
		return Layout{}, fmt.Errorf("dimension %d is too small for a node layout", dim)
	}

	regions := make([]Region, 7)
	off := 0
	for i, n := range sizes {
		regions[i] = Region{Start: off, Len: n}
		off += n
	}

	l := Layout{
		Dimension:   dim,
		Identity:    regions[0],
		Spatial:     regions[1],
		Semantic:    regions[2],
		Activation:  regions[3],
		Connections: regions[4],
		Field:       regions[5],
		Metadata:    regions[6],
	}
	return l, l.Validate()
}

// Regions returns the subregions in vector order with their names.
func (l Layout) Regions() []NamedRegion {
	return []NamedRegion{
		{"identity", l.Identity},
		{"spatial", l.Spatial},
		{"semantic", l.Semantic},
		{"activation", l.Activation},
		{"connections", l.Connections},
		{"field", l.Field},
		{"metadata", l.Metadata},
	}
}

// NamedRegion pairs a region with its name for validation and display.
type NamedRegion struct {
	Name string
	Region
}

// Validate checks that the regions tile [0, Dimension) without gaps or overlap
// and that the regions the engine indexes into are large enough.
func (l Layout) Validate() error {
	if l.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", l.Dimension)
	}
	off := 0
	for _, r := range l.Regions() {
		if r.Start != off {
			return fmt.Errorf("region %s starts at %d, want %d", r.Name, r.Start, off)
		}
		if r.Len <= 0 {
			return fmt.Errorf("region %s must not be empty", r.Name)
		}
		off = r.End()
	}
	if off != l.Dimension {
		return fmt.Errorf("regions cover %d dimensions, want %d", off, l.Dimension)
	}
	if l.Metadata.Len < 2 {
		return fmt.Errorf("metadata region needs at least 2 slots, got %d", l.Metadata.Len)
	}
	return nil
}

// activationIndex returns the offset of the activation scalar.
func (l Layout) activationIndex() int { return l.Activation.Start }

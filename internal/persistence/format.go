// Package persistence serializes a topology as fixed-stride binary records.
//
// Layout (little endian):
//
//	magic "LOOM"
//	header: dimension, node capacity, edge capacity, processor dim,
//	        max arity, 7 subregion lengths in vector order (u32 each),
//	        precision (u8: 4 = float32, 2 = float16)
//	nodes:      u32 count, count x {dimension values, u32 connections, u8 flags}
//	row_ptr:    u32 n, n x u32
//	col_idx:    u32 E, E x u32
//	values:     u32 E, E x f32
//	flags:      u32 E, E x u8
//	hyperedges: u32 H, H x {u32 id, u8 type, u8 arity, max arity x u32,
//	            f32 state, u32 usage, u32 processor, processor dim values}
//	labels:     u32 count, count x {u32 length, bytes}
//	trailer:    u64 xxhash64 of every preceding byte
//
// There is no versioning: a reader must be configured with the same
// dimension, subregion layout, capacities and precision as the writer.
package persistence

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/nvandessel/loom/internal/hyperedge"
	"github.com/nvandessel/loom/internal/models"
)

var magic = [4]byte{'L', 'O', 'O', 'M'}

// maxLabelLength bounds a single label on read.
const maxLabelLength = 1 << 16

// ErrCorrupt is returned when the stream is truncated or fails its checksum.
var ErrCorrupt = errors.New("corrupt topology file")

// Precision is the byte width of stored vector components.
type Precision uint8

const (
	Float32 Precision = 4
	Float16 Precision = 2
)

// ParsePrecision maps "float32"/"f32" and "float16"/"f16" to a Precision.
func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "", "float32", "f32":
		return Float32, nil
	case "float16", "f16", "half":
		return Float16, nil
	}
	return 0, fmt.Errorf("unknown precision %q (valid: float32, float16)", s)
}

func (p Precision) String() string {
	switch p {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	}
	return fmt.Sprintf("precision(%d)", uint8(p))
}

// LayoutRegions is the number of node subregions recorded in a header.
const LayoutRegions = 7

// Header holds the constants reader and writer must agree on. Layout holds
// the subregion lengths in vector order (identity, spatial, semantic,
// activation, connections, field, metadata); two layouts of the same
// dimension still differ in how a record is read.
type Header struct {
	Dimension    uint32                `json:"dimension"`
	NodeCapacity uint32                `json:"node_capacity"`
	EdgeCapacity uint32                `json:"edge_capacity"`
	ProcessorDim uint32                `json:"processor_dim"`
	MaxArity     uint32                `json:"max_arity"`
	Layout       [LayoutRegions]uint32 `json:"layout"`
	Precision    Precision             `json:"precision"`
}

func (e *encoder) header(h Header) {
	e.u32(h.Dimension)
	e.u32(h.NodeCapacity)
	e.u32(h.EdgeCapacity)
	e.u32(h.ProcessorDim)
	e.u32(h.MaxArity)
	for _, n := range h.Layout {
		e.u32(n)
	}
	e.u8(uint8(h.Precision))
}

func (d *decoder) header() Header {
	h := Header{
		Dimension:    d.u32(),
		NodeCapacity: d.u32(),
		EdgeCapacity: d.u32(),
		ProcessorDim: d.u32(),
		MaxArity:     d.u32(),
	}
	for i := range h.Layout {
		h.Layout[i] = d.u32()
	}
	h.Precision = Precision(d.u8())
	return h
}

// Node flag bits in a node record.
const nodeFlagProcessor = 1

// Snapshot is the in-memory image of a persisted topology.
type Snapshot struct {
	Header Header

	// Count nodes, Count*Dimension vector values.
	Count       int
	Vectors     []float64
	Connections []uint32
	Processors  []models.NodeID
	Labels      []string

	RowPtr []uint32
	ColIdx []models.NodeID
	Values []float64
	Flags  []models.EdgeFlag

	Hyperedges []hyperedge.Hyperedge
}

// Encode writes s to w.
func Encode(w io.Writer, s *Snapshot) error {
	h := s.Header
	if h.Precision != Float32 && h.Precision != Float16 {
		return fmt.Errorf("encode: unsupported %s", h.Precision)
	}
	dim := int(h.Dimension)
	if len(s.Vectors) != s.Count*dim {
		return fmt.Errorf("encode: %d vector values for %d nodes of dimension %d", len(s.Vectors), s.Count, dim)
	}

	bw := bufio.NewWriter(w)
	digest := xxhash.New()
	e := &encoder{w: io.MultiWriter(bw, digest)}

	e.write(magic[:])
	e.header(h)

	processors := make(map[models.NodeID]bool, len(s.Processors))
	for _, id := range s.Processors {
		processors[id] = true
	}
	e.u32(uint32(s.Count))
	for i := 0; i < s.Count; i++ {
		for _, v := range s.Vectors[i*dim : (i+1)*dim] {
			e.value(h.Precision, v)
		}
		var conn uint32
		if i < len(s.Connections) {
			conn = s.Connections[i]
		}
		e.u32(conn)
		var flags uint8
		if processors[models.NodeID(i)] {
			flags |= nodeFlagProcessor
		}
		e.u8(flags)
	}

	e.u32(uint32(len(s.RowPtr)))
	for _, v := range s.RowPtr {
		e.u32(v)
	}
	e.u32(uint32(len(s.ColIdx)))
	for _, v := range s.ColIdx {
		e.u32(uint32(v))
	}
	e.u32(uint32(len(s.Values)))
	for _, v := range s.Values {
		e.f32(v)
	}
	e.u32(uint32(len(s.Flags)))
	for _, v := range s.Flags {
		e.u8(uint8(v))
	}

	e.u32(uint32(len(s.Hyperedges)))
	for _, he := range s.Hyperedges {
		if len(he.Participants) > int(h.MaxArity) || len(he.Vector) != int(h.ProcessorDim) {
			return fmt.Errorf("encode hyperedge %d: arity %d or vector %d does not fit the header", he.ID, len(he.Participants), len(he.Vector))
		}
		e.u32(uint32(he.ID))
		e.u8(uint8(he.Type))
		e.u8(uint8(len(he.Participants)))
		for j := 0; j < int(h.MaxArity); j++ {
			var p uint32
			if j < len(he.Participants) {
				p = uint32(he.Participants[j])
			}
			e.u32(p)
		}
		e.f32(he.State)
		e.u32(he.Usage)
		e.u32(uint32(he.Processor))
		for _, v := range he.Vector {
			e.value(h.Precision, v)
		}
	}

	e.u32(uint32(s.Count))
	for i := 0; i < s.Count; i++ {
		var label string
		if i < len(s.Labels) {
			label = s.Labels[i]
		}
		e.str(label)
	}

	if e.err != nil {
		return fmt.Errorf("encode: %w", e.err)
	}
	e.w = bw
	e.u64(digest.Sum64())
	if e.err != nil {
		return fmt.Errorf("encode: %w", e.err)
	}
	return bw.Flush()
}

// Decode reads a snapshot from r. The stored header must equal want;
// otherwise ErrFormatMismatch is returned before any block is read.
func Decode(r io.Reader, want Header) (*Snapshot, error) {
	br := bufio.NewReader(r)
	digest := xxhash.New()
	d := &decoder{r: io.TeeReader(br, digest)}

	var m [4]byte
	copy(m[:], d.read(4))
	if d.err != nil {
		return nil, fmt.Errorf("decode: %w", d.err)
	}
	if m != magic {
		return nil, fmt.Errorf("decode: bad magic %q: %w", m[:], models.ErrFormatMismatch)
	}
	h := d.header()
	if d.err != nil {
		return nil, fmt.Errorf("decode header: %w", d.err)
	}
	if h != want {
		return nil, fmt.Errorf("decode: file has %+v, engine expects %+v: %w", h, want, models.ErrFormatMismatch)
	}

	s := &Snapshot{Header: h}
	dim := int(h.Dimension)

	s.Count = d.count("nodes", int(h.NodeCapacity))
	s.Vectors = make([]float64, 0, s.Count*dim)
	s.Connections = make([]uint32, 0, s.Count)
	for i := 0; i < s.Count && d.err == nil; i++ {
		for j := 0; j < dim; j++ {
			s.Vectors = append(s.Vectors, d.value(h.Precision))
		}
		s.Connections = append(s.Connections, d.u32())
		if d.u8()&nodeFlagProcessor != 0 {
			s.Processors = append(s.Processors, models.NodeID(i))
		}
	}

	n := d.count("row_ptr", int(h.NodeCapacity)+1)
	s.RowPtr = make([]uint32, n)
	for i := range s.RowPtr {
		s.RowPtr[i] = d.u32()
	}
	edges := int(h.EdgeCapacity)
	s.ColIdx = make([]models.NodeID, d.count("col_idx", edges))
	for i := range s.ColIdx {
		s.ColIdx[i] = models.NodeID(d.u32())
	}
	s.Values = make([]float64, d.count("values", edges))
	for i := range s.Values {
		s.Values[i] = d.f32()
	}
	s.Flags = make([]models.EdgeFlag, d.count("flags", edges))
	for i := range s.Flags {
		s.Flags[i] = models.EdgeFlag(d.u8())
	}

	nh := d.count("hyperedges", int(h.NodeCapacity))
	for i := 0; i < nh && d.err == nil; i++ {
		var he hyperedge.Hyperedge
		he.ID = models.HyperedgeID(d.u32())
		he.Type = models.ProcessorType(d.u8())
		arity := int(d.u8())
		if d.err == nil && arity > int(h.MaxArity) {
			d.err = fmt.Errorf("%w: hyperedge %d arity %d above %d", ErrCorrupt, he.ID, arity, h.MaxArity)
			break
		}
		for j := 0; j < int(h.MaxArity); j++ {
			p := models.NodeID(d.u32())
			if j < arity {
				he.Participants = append(he.Participants, p)
			}
		}
		he.State = d.f32()
		he.Usage = d.u32()
		he.Processor = models.NodeID(d.u32())
		he.Vector = make([]float64, h.ProcessorDim)
		for j := range he.Vector {
			he.Vector[j] = d.value(h.Precision)
		}
		s.Hyperedges = append(s.Hyperedges, he)
	}

	nl := d.count("labels", int(h.NodeCapacity))
	s.Labels = make([]string, 0, nl)
	for i := 0; i < nl && d.err == nil; i++ {
		s.Labels = append(s.Labels, d.str(maxLabelLength))
	}
	if d.err != nil {
		return nil, fmt.Errorf("decode: %w", d.err)
	}

	sum := digest.Sum64()
	d.r = br
	if stored := d.u64(); d.err != nil || stored != sum {
		return nil, fmt.Errorf("decode: checksum %x does not match %x: %w", stored, sum, ErrCorrupt)
	}
	return s, nil
}

// Package models defines the identifiers, processor types, edge flags and
// error values shared by the loom engine packages.
package models

import (
	"fmt"
	"strings"
)

// NodeID is the stable arena index of a node vector.
type NodeID uint32

// HyperedgeID is the stable index of a hyperedge in the processor registry.
type HyperedgeID uint32

// ProcessorType selects the update rule a hyperedge applies to its
// participants. The set is closed; every value is handled by a switch in
// the hyperedge package.
type ProcessorType uint8

const (
	ProcessorAnd       ProcessorType = iota // All participants must activate
	ProcessorOr                             // Any participant activates
	ProcessorXor                            // Odd number of participants active
	ProcessorThreshold                      // At least two participants active
	ProcessorResonance                      // Participants amplify each other
	ProcessorInhibit                        // Strongest participant suppresses the rest
	ProcessorSequence                       // Participants fire in stored order
	ProcessorCustom                         // Plain average of participants
)

var processorNames = [...]string{
	ProcessorAnd:       "and",
	ProcessorOr:        "or",
	ProcessorXor:       "xor",
	ProcessorThreshold: "threshold",
	ProcessorResonance: "resonance",
	ProcessorInhibit:   "inhibit",
	ProcessorSequence:  "sequence",
	ProcessorCustom:    "custom",
}

// String returns the lowercase name of the processor type.
func (p ProcessorType) String() string {
	if int(p) < len(processorNames) {
		return processorNames[p]
	}
	return fmt.Sprintf("processor(%d)", uint8(p))
}

// Valid reports whether p is one of the defined processor types.
func (p ProcessorType) Valid() bool {
	return int(p) < len(processorNames)
}

// ParseProcessorType maps a case-insensitive name to a ProcessorType.
func ParseProcessorType(s string) (ProcessorType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range processorNames {
		if n == name {
			return ProcessorType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown processor type %q (valid: %s)", s, strings.Join(processorNames[:], ", "))
}

// EdgeFlag is a bit set stored alongside every CSR entry.
type EdgeFlag uint8

const (
	// FlagBidirectional marks one half of a mirrored pair.
	FlagBidirectional EdgeFlag = 1 << iota
	// FlagTemporary marks an edge as logically pruned. It stays in the CSR
	// arrays until the next compaction.
	FlagTemporary
	// FlagHyperedge marks a Levi edge between a processor node and a participant.
	FlagHyperedge
)

// Has reports whether all bits of mask are set.
func (f EdgeFlag) Has(mask EdgeFlag) bool {
	return f&mask == mask
}

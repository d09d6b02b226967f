package kernel

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/loom/internal/models"
)

// OpKind names a structural operation.
type OpKind string

const (
	OpNode          OpKind = "node"
	OpEdge          OpKind = "edge"
	OpBidirectional OpKind = "bidirectional"
	OpHyperedge     OpKind = "hyperedge"
	OpActivate      OpKind = "activate"
	OpDeactivate    OpKind = "deactivate"
)

// Op is a structural operation queued for the next tick. Nodes are
// referenced by label.
type Op struct {
	Kind         OpKind   `json:"kind" yaml:"kind"`
	Label        string   `json:"label,omitempty" yaml:"label,omitempty"`
	From         string   `json:"from,omitempty" yaml:"from,omitempty"`
	To           string   `json:"to,omitempty" yaml:"to,omitempty"`
	Weight       float64  `json:"weight,omitempty" yaml:"weight,omitempty"`
	Participants []string `json:"participants,omitempty" yaml:"participants,omitempty"`
	Processor    string   `json:"processor,omitempty" yaml:"processor,omitempty"`
	Activation   float64  `json:"activation,omitempty" yaml:"activation,omitempty"`
}

// String renders the op for logs.
func (op Op) String() string {
	switch op.Kind {
	case OpNode, OpDeactivate:
		return fmt.Sprintf("%s %q", op.Kind, op.Label)
	case OpActivate:
		return fmt.Sprintf("%s %q=%g", op.Kind, op.Label, op.Activation)
	case OpEdge, OpBidirectional:
		return fmt.Sprintf("%s %q->%q (%g)", op.Kind, op.From, op.To, op.Weight)
	case OpHyperedge:
		return fmt.Sprintf("%s %s %v", op.Kind, op.Processor, op.Participants)
	}
	return fmt.Sprintf("op(%s)", op.Kind)
}

// opsFile is the YAML document read by ReadOps.
type opsFile struct {
	Ops []Op `yaml:"ops"`
}

// ReadOps parses a YAML document of the form
//
//	ops:
//	  - {kind: node, label: self}
//	  - {kind: bidirectional, from: self, to: now, weight: 0.9}
//	  - {kind: hyperedge, processor: resonance, participants: [self, now]}
func ReadOps(r io.Reader) ([]Op, error) {
	var f opsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse ops: %w", err)
	}
	return f.Ops, nil
}

// Enqueue queues ops for the first phase of the next tick. It never blocks
// on a running tick.
func (e *Engine) Enqueue(ops ...Op) {
	e.qmu.Lock()
	e.queue = append(e.queue, ops...)
	e.qmu.Unlock()
}

// Pending returns the number of queued ops.
func (e *Engine) Pending() int {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	return len(e.queue)
}

// Apply runs one op immediately. It resolves labels at call time.
func (e *Engine) Apply(op Op) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply(op)
}

// drain applies every queued op in order. Malformed ops are logged and
// skipped; they never stop the tick.
func (e *Engine) drain() (applied, skipped int) {
	e.qmu.Lock()
	ops := e.queue
	e.queue = nil
	e.qmu.Unlock()

	for _, op := range ops {
		if err := e.apply(op); err != nil {
			skipped++
			e.logger.Warn("skipping queued op", "op", op.String(), "error", err)
			e.decisions.Record("op_skipped", "tick", e.tick, "op", op.String(), "error", err.Error())
			continue
		}
		applied++
	}
	return applied, skipped
}

func (e *Engine) apply(op Op) error {
	switch op.Kind {
	case OpNode:
		_, err := e.createNode(op.Label)
		return err
	case OpEdge, OpBidirectional:
		src, err := e.resolve(op.From)
		if err != nil {
			return err
		}
		dst, err := e.resolve(op.To)
		if err != nil {
			return err
		}
		if op.Kind == OpEdge {
			return e.createEdge(src, dst, op.Weight)
		}
		return e.createBidirectional(src, dst, op.Weight)
	case OpHyperedge:
		typ, err := models.ParseProcessorType(op.Processor)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrInvalidHyperedge, err)
		}
		ids := make([]models.NodeID, 0, len(op.Participants))
		for _, label := range op.Participants {
			id, err := e.resolve(label)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		_, err = e.registry.Create(ids, typ)
		return err
	case OpActivate:
		id, err := e.resolve(op.Label)
		if err != nil {
			return err
		}
		return e.store.SetActivation(id, op.Activation)
	case OpDeactivate:
		id, err := e.resolve(op.Label)
		if err != nil {
			return err
		}
		return e.store.Deactivate(id)
	}
	return fmt.Errorf("unknown op kind %q", op.Kind)
}

func (e *Engine) resolve(label string) (models.NodeID, error) {
	id, ok := e.store.Lookup(label)
	if !ok {
		return 0, fmt.Errorf("unknown node %q: %w", label, models.ErrInvalidIndex)
	}
	return id, nil
}

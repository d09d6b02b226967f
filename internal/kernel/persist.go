package kernel

import (
	"fmt"

	"github.com/nvandessel/loom/internal/graph"
	"github.com/nvandessel/loom/internal/models"
	"github.com/nvandessel/loom/internal/persistence"
	"github.com/nvandessel/loom/internal/vecstore"
)

// Save writes the topology to path. A path ending in .zst is compressed.
// Trajectories, context and the tick counter are not part of the file.
func (e *Engine) Save(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.snapshot()
	if err := persistence.SaveFile(path, s); err != nil {
		return err
	}
	e.logger.Debug("saved topology", "path", path, "nodes", s.Count, "edges", len(s.ColIdx), "hyperedges", len(s.Hyperedges))
	e.decisions.Record("save", "tick", e.tick, "path", path, "nodes", s.Count, "edges", len(s.ColIdx))
	return nil
}

func (e *Engine) snapshot() *persistence.Snapshot {
	count := e.store.Len()
	dim := e.cfg.Layout.Dimension
	s := &persistence.Snapshot{
		Header:      e.cfg.header(),
		Count:       count,
		Vectors:     e.store.Data()[:count*dim],
		Connections: make([]uint32, count),
		Labels:      make([]string, count),
		RowPtr:      e.graph.RowPtr(),
		Hyperedges:  e.registry.All(),
	}
	for i := 0; i < count; i++ {
		id := models.NodeID(i)
		s.Connections[i] = e.store.Connections(id)
		s.Labels[i] = e.store.Label(id)
		if e.store.IsProcessor(id) {
			s.Processors = append(s.Processors, id)
		}
	}
	s.ColIdx, s.Values, s.Flags = e.graph.Edges()
	return s
}

// Load replaces the topology with the one stored at path. The file must
// have been written with the same dimension, capacities and precision;
// otherwise the error wraps models.ErrFormatMismatch. On any error the
// engine is left unchanged.
func (e *Engine) Load(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := persistence.LoadFile(path, e.cfg.header())
	if err != nil {
		return err
	}
	store, err := vecstore.Restore(e.cfg.Layout, e.cfg.NodeCapacity, s.Vectors, s.Count, s.Labels, s.Processors)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	for i, c := range s.Connections {
		store.SetConnections(models.NodeID(i), c)
	}
	if s.Header.Precision == persistence.Float16 {
		// Half precision rounding breaks the unit norm.
		for i := 0; i < s.Count; i++ {
			store.Finalize(models.NodeID(i))
		}
	}
	g, err := graph.Restore(s.Count, e.cfg.EdgeCapacity, e.cfg.Bounds, s.RowPtr, s.ColIdx, s.Values, s.Flags)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if err := e.install(store, g, s.Hyperedges); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	e.trajectories = nil
	e.emergence = e.computeEmergence()

	e.logger.Info("loaded topology", "path", path, "nodes", s.Count, "edges", len(s.ColIdx), "hyperedges", len(s.Hyperedges))
	e.decisions.Record("load", "tick", e.tick, "path", path, "nodes", s.Count, "edges", len(s.ColIdx))
	return nil
}

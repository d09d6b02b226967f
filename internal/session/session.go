// Package session binds an engine to a project directory: the topology
// file under .loom/, the SQLite journal, checkpoint rotation and the
// decision log. The CLI opens one session per command and the MCP server
// holds one for its lifetime.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nvandessel/loom/internal/checkpoint"
	"github.com/nvandessel/loom/internal/config"
	"github.com/nvandessel/loom/internal/kernel"
	"github.com/nvandessel/loom/internal/logging"
	"github.com/nvandessel/loom/internal/metrics"
	"github.com/nvandessel/loom/internal/models"
	"github.com/nvandessel/loom/internal/store"
)

// flushEvery is the number of buffered tick records written per journal
// transaction.
const flushEvery = 256

var (
	// ErrNotInitialized is returned by Open when the project has no topology.
	ErrNotInitialized = errors.New("loom not initialized (run 'loom init')")

	// ErrAlreadyInitialized is returned by Create when a topology exists.
	ErrAlreadyInitialized = errors.New("loom already initialized")
)

// Options configure Open and Create.
type Options struct {
	// Root is the project directory holding .loom/.
	Root string

	// Config defaults to config.Default().
	Config *config.LoomConfig

	// Command is recorded with the journal run, e.g. "run" or "mcp-server".
	Command string

	// Logger defaults to a discard logger.
	Logger *slog.Logger

	// Registerer, if set, receives the engine's Prometheus collectors.
	Registerer prometheus.Registerer

	// NoJournal skips the SQLite journal. Ops and ticks are then not recorded.
	NoJournal bool
}

// Session is an engine opened on a project directory.
type Session struct {
	engine *kernel.Engine
	cfg    *config.LoomConfig
	root   string
	logger *slog.Logger

	decisions *logging.DecisionLogger
	journal   *store.Journal
	run       store.Run
	base      uint64

	runMu     sync.Mutex // serializes Tick calls
	mu        sync.Mutex
	pending   []store.TickRecord
	ticks     uint64
	lastCheck uint64
	closed    bool
}

// Exists reports whether root holds a topology.
func Exists(root string) bool {
	_, err := os.Stat(store.TopologyPath(root))
	return err == nil
}

// Open loads the topology under root.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if !Exists(opts.Root) {
		return nil, ErrNotInitialized
	}
	s, err := newSession(opts)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Load(s.TopologyPath()); err != nil {
		s.decisions.Close()
		return nil, err
	}
	if err := s.startRun(ctx, opts); err != nil {
		s.decisions.Close()
		return nil, err
	}
	return s, nil
}

// Create initializes .loom/ under root with an empty topology, or the
// primordial one when bootstrap is set, and saves it.
func Create(ctx context.Context, opts Options, bootstrap bool) (*Session, error) {
	if Exists(opts.Root) {
		return nil, ErrAlreadyInitialized
	}
	if err := os.MkdirAll(store.LocalLoomPath(opts.Root), 0755); err != nil {
		return nil, fmt.Errorf("failed to create .loom directory: %w", err)
	}
	s, err := newSession(opts)
	if err != nil {
		return nil, err
	}
	if bootstrap {
		if err := s.engine.Bootstrap(); err != nil {
			s.decisions.Close()
			return nil, err
		}
	}
	if err := s.engine.Save(s.TopologyPath()); err != nil {
		s.decisions.Close()
		return nil, err
	}
	if err := s.startRun(ctx, opts); err != nil {
		s.decisions.Close()
		return nil, err
	}
	return s, nil
}

func newSession(opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	kc, err := cfg.KernelConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.OrDiscard(opts.Logger)
	decisions := logging.NewDecisionLogger(store.LocalLoomPath(opts.Root), cfg.Logging.Level)

	engineOpts := []kernel.Option{kernel.WithLogger(logger), kernel.WithDecisionLogger(decisions)}
	if opts.Registerer != nil {
		engineOpts = append(engineOpts, kernel.WithMetrics(metrics.New(opts.Registerer)))
	}
	eng, err := kernel.New(kc, engineOpts...)
	if err != nil {
		decisions.Close()
		return nil, err
	}
	if len(cfg.Context) > 0 {
		eng.SetContext(cfg.Context)
	}
	return &Session{
		engine:    eng,
		cfg:       cfg,
		root:      opts.Root,
		logger:    logger,
		decisions: decisions,
	}, nil
}

func (s *Session) startRun(ctx context.Context, opts Options) error {
	if opts.NoJournal {
		return nil
	}
	j, err := store.OpenJournal(s.root)
	if err != nil {
		return err
	}
	// Tick counters are not persisted in the topology file; the journal
	// carries them across runs.
	base, err := j.TotalTicks(ctx, s.TopologyPath())
	if err != nil {
		j.Close()
		return err
	}
	run, err := j.StartRun(ctx, s.TopologyPath(), opts.Command, base)
	if err != nil {
		j.Close()
		return err
	}
	s.journal = j
	s.run = run
	s.base = base
	return nil
}

// Engine returns the underlying engine.
func (s *Session) Engine() *kernel.Engine { return s.engine }

// Config returns the configuration the session was opened with.
func (s *Session) Config() *config.LoomConfig { return s.cfg }

// Root returns the project directory.
func (s *Session) Root() string { return s.root }

// TopologyPath returns the path of the main topology file.
func (s *Session) TopologyPath() string { return store.TopologyPath(s.root) }

// CheckpointDir returns the checkpoint directory.
func (s *Session) CheckpointDir() string { return store.CheckpointDir(s.root) }

// Journal returns the journal, or nil when opened with NoJournal.
func (s *Session) Journal() *store.Journal { return s.journal }

// Run returns the journal run of this session. Its ID is empty when
// opened with NoJournal.
func (s *Session) Run() store.Run { return s.run }

// Apply runs op immediately and journals it with its outcome.
func (s *Session) Apply(ctx context.Context, op kernel.Op) error {
	applyErr := s.engine.Apply(op)
	s.recordOp(ctx, op, applyErr)
	return applyErr
}

// Resolve maps a node label to its id.
func (s *Session) Resolve(label string) (models.NodeID, error) {
	id, ok := s.engine.Lookup(label)
	if !ok {
		return 0, fmt.Errorf("unknown node %q: %w", label, models.ErrInvalidIndex)
	}
	return id, nil
}

// CreateNode adds a node immediately and journals it.
func (s *Session) CreateNode(ctx context.Context, label string) (models.NodeID, error) {
	id, err := s.engine.CreateNode(label)
	s.recordOp(ctx, kernel.Op{Kind: kernel.OpNode, Label: label}, err)
	return id, err
}

// CreateHyperedge registers a hyperedge over the labelled nodes and
// journals it.
func (s *Session) CreateHyperedge(ctx context.Context, labels []string, typ models.ProcessorType) (models.HyperedgeID, error) {
	op := kernel.Op{Kind: kernel.OpHyperedge, Participants: labels, Processor: typ.String()}
	ids := make([]models.NodeID, 0, len(labels))
	for _, label := range labels {
		id, err := s.Resolve(label)
		if err != nil {
			s.recordOp(ctx, op, err)
			return 0, err
		}
		ids = append(ids, id)
	}
	hid, err := s.engine.CreateHyperedge(ids, typ)
	s.recordOp(ctx, op, err)
	return hid, err
}

// Enqueue queues ops for the next tick and journals them as queued.
func (s *Session) Enqueue(ctx context.Context, ops ...kernel.Op) {
	s.engine.Enqueue(ops...)
	for _, op := range ops {
		s.recordOp(ctx, op, nil)
	}
}

func (s *Session) recordOp(ctx context.Context, op kernel.Op, applyErr error) {
	if s.journal == nil {
		return
	}
	detail, _ := json.Marshal(op)
	rec := store.OpRecord{
		RunID:  s.run.ID,
		Tick:   s.ProjectTick(),
		Kind:   string(op.Kind),
		Detail: string(detail),
	}
	if applyErr != nil {
		rec.Error = applyErr.Error()
	}
	if _, err := s.journal.RecordOp(ctx, rec); err != nil {
		s.logger.Warn("failed to journal op", "op", op.String(), "error", err)
	}
}

// Tick runs n ticks (until ctx is done when n <= 0). Every tick is
// journaled, checkpoints are written every Persistence.CheckpointEvery
// ticks and rotated, and every, if non-nil, sees each report.
func (s *Session) Tick(ctx context.Context, n int, every func(kernel.TickReport)) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	var cpErr error
	err := s.engine.Run(ctx, n, func(r kernel.TickReport) {
		s.observe(ctx, r)
		if cpErr == nil {
			cpErr = s.maybeCheckpoint(s.base + r.Tick)
		}
		if every != nil {
			every(r)
		}
	})
	if flushErr := s.Flush(ctx); flushErr != nil && err == nil {
		err = flushErr
	}
	if err == nil {
		err = cpErr
	}
	return err
}

func (s *Session) observe(ctx context.Context, r kernel.TickReport) {
	s.mu.Lock()
	s.ticks++
	if s.journal == nil {
		s.mu.Unlock()
		return
	}
	rec := Record(r)
	rec.Tick += s.base
	s.pending = append(s.pending, rec)
	full := len(s.pending) >= flushEvery
	s.mu.Unlock()
	if full {
		if err := s.Flush(ctx); err != nil {
			s.logger.Warn("failed to journal ticks", "error", err)
		}
	}
}

// Flush writes buffered tick records to the journal.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	if s.journal == nil || len(batch) == 0 {
		return nil
	}
	// The run context may already be cancelled; telemetry is still written.
	return s.journal.RecordTicks(context.WithoutCancel(ctx), s.run.ID, batch)
}

// maybeCheckpoint checkpoints on multiples of CheckpointEvery, counted in
// project-wide ticks.
func (s *Session) maybeCheckpoint(tick uint64) error {
	every := s.cfg.Persistence.CheckpointEvery
	if every == 0 || tick%every != 0 || tick == s.lastCheck {
		return nil
	}
	s.lastCheck = tick
	_, err := s.Checkpoint()
	return err
}

// Checkpoint writes a checkpoint of the current state and applies the
// configured rotation.
func (s *Session) Checkpoint() (checkpoint.Info, error) {
	p := s.cfg.Persistence
	info, err := checkpoint.Write(s.CheckpointDir(), offsetSaver{s.engine, s.base}, p.Compress)
	if err != nil {
		return checkpoint.Info{}, err
	}
	deleted, err := checkpoint.Prune(s.CheckpointDir(), checkpoint.NewPolicy(p.MaxCheckpoints, p.MaxCheckpointAge))
	if err != nil {
		return info, err
	}
	s.logger.Debug("checkpoint written", "path", info.Path, "tick", info.Tick, "rotated", len(deleted))
	s.decisions.Record("checkpoint", "tick", info.Tick, "path", info.Path, "rotated", len(deleted))
	return info, nil
}

// Save writes the topology file.
func (s *Session) Save() error {
	return s.engine.Save(s.TopologyPath())
}

// Reload replaces the engine state with the topology file.
func (s *Session) Reload() error {
	return s.engine.Load(s.TopologyPath())
}

// Restore replaces the engine state from source: "" or "topology" for the
// topology file, "latest" for the newest checkpoint, or a project tick
// naming a checkpoint. Only files inside the checkpoint directory are
// reachable. It returns the path that was loaded.
func (s *Session) Restore(source string) (string, error) {
	path, err := s.restorePath(source)
	if err != nil {
		return "", err
	}
	if err := s.engine.Load(path); err != nil {
		return "", err
	}
	s.logger.Info("topology restored", "source", source, "path", path)
	s.decisions.Record("restore", "source", source, "path", path)
	return path, nil
}

func (s *Session) restorePath(source string) (string, error) {
	switch source {
	case "", "topology":
		return s.TopologyPath(), nil
	case "latest":
		info, ok, err := checkpoint.Latest(s.CheckpointDir())
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("no checkpoints in %s", s.CheckpointDir())
		}
		return info.Path, nil
	}

	tick, err := strconv.ParseUint(source, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid source %q (valid: topology, latest, or a checkpoint tick)", source)
	}
	all, err := checkpoint.List(s.CheckpointDir())
	if err != nil {
		return "", err
	}
	for _, info := range all {
		if info.Tick == tick {
			return info.Path, nil
		}
	}
	return "", fmt.Errorf("no checkpoint at tick %d", tick)
}

// ProjectTick returns the project-wide tick: the ticks of earlier
// journaled runs plus the engine's own count.
func (s *Session) ProjectTick() uint64 {
	return s.base + s.engine.TickCount()
}

// offsetSaver names checkpoints by project-wide tick.
type offsetSaver struct {
	*kernel.Engine
	base uint64
}

func (o offsetSaver) TickCount() uint64 { return o.base + o.Engine.TickCount() }

// Ticks returns the number of ticks run in this session.
func (s *Session) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Close flushes telemetry, ends the journal run and releases files. It
// does not save the topology.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if s.journal != nil {
		errs = append(errs, s.Flush(ctx))
		errs = append(errs, s.journal.EndRun(context.WithoutCancel(ctx), s.run.ID, s.Ticks()))
		errs = append(errs, s.journal.Close())
	}
	s.decisions.Close()
	return errors.Join(errs...)
}

// Record converts a tick report into its journal row.
func Record(r kernel.TickReport) store.TickRecord {
	return store.TickRecord{
		Tick:           r.Tick,
		Time:           r.Time,
		Nodes:          r.Nodes,
		Edges:          r.Edges,
		TemporaryEdges: r.TemporaryEdges,
		Hyperedges:     r.Hyperedges,
		ActiveNodes:    r.ActiveNodes,
		Fired:          r.Fired,
		Emergence:      r.Emergence,
		OpsApplied:     r.OpsApplied,
		OpsSkipped:     r.OpsSkipped,
		Duration:       r.Duration,
	}
}

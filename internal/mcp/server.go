package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/loom/internal/logging"
	"github.com/nvandessel/loom/internal/ratelimit"
	"github.com/nvandessel/loom/internal/session"
)

// defaultTicksPerCall bounds loom_tick when Config.TicksPerCall is unset.
const defaultTicksPerCall = 10000

// Server wraps the MCP SDK server and exposes one loom session as tools.
type Server struct {
	server       *sdk.Server
	session      *session.Session
	logger       *slog.Logger
	toolLimiters ratelimit.ToolLimiters
	globalLimit  *ratelimit.Limiter
	auditLogger  *AuditLogger
	ticksPerCall int
	autoSave     bool
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "loom")
	Version string // Server version

	// Session is the opened project. The caller keeps ownership and closes it.
	Session *session.Session

	Logger *slog.Logger

	// Limiters default to ratelimit.NewToolLimiters().
	Limiters ratelimit.ToolLimiters

	// GlobalLimit, if set, is checked before the per-tool limiters.
	GlobalLimit *ratelimit.Limiter

	// TicksPerCall caps the ticks a single loom_tick call may run.
	TicksPerCall int

	// AutoSave writes the topology file when Run returns.
	AutoSave bool
}

// NewServer creates a new MCP server with loom tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Session == nil {
		return nil, errors.New("mcp server requires a session")
	}

	limiters := cfg.Limiters
	if limiters == nil {
		limiters = ratelimit.NewToolLimiters()
	}
	ticks := cfg.TicksPerCall
	if ticks <= 0 {
		ticks = defaultTicksPerCall
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		session:      cfg.Session,
		logger:       logging.OrDiscard(cfg.Logger),
		toolLimiters: limiters,
		globalLimit:  cfg.GlobalLimit,
		auditLogger:  NewAuditLogger(cfg.Session.Root()),
		ticksPerCall: ticks,
		autoSave:     cfg.AutoSave,
	}

	if err := s.registerTools(); err != nil {
		s.auditLogger.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	if err := s.registerResources(); err != nil {
		s.auditLogger.Close()
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("mcp server started", "root", s.session.Root(), "tick", s.session.ProjectTick())
	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if s.autoSave {
		if saveErr := s.session.Save(); saveErr != nil {
			s.logger.Error("failed to save topology on exit", "error", saveErr)
			err = errors.Join(err, saveErr)
		}
	}
	return err
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}

// checkLimit applies the global limiter, then the tool's own.
func (s *Server) checkLimit(toolName string) error {
	if s.globalLimit != nil && !s.globalLimit.Allow("global") {
		return fmt.Errorf("rate limit exceeded, please try again shortly")
	}
	return ratelimit.CheckLimit(s.toolLimiters, toolName)
}

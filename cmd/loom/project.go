package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nvandessel/loom/internal/config"
	"github.com/nvandessel/loom/internal/logging"
	"github.com/nvandessel/loom/internal/session"
)

// projectOptions tune openProject.
type projectOptions struct {
	// readOnly skips the journal run for commands that only inspect.
	readOnly bool

	registerer prometheus.Registerer
}

// loadConfig layers the project configuration under root and validates it.
func loadConfig(root string) (*config.LoomConfig, error) {
	cfg, err := config.LoadProject(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the operational logger. Logs go to stderr so stdout
// stays parseable.
func newLogger(cfg *config.LoomConfig) *slog.Logger {
	return logging.NewLoggerWithFormat(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
}

// openProject opens the session under --root for the named command.
// Callers close the returned session.
func openProject(cmd *cobra.Command, opts projectOptions) (*session.Session, error) {
	root, _ := cmd.Flags().GetString("root")
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	sess, err := session.Open(cmd.Context(), session.Options{
		Root:       root,
		Config:     cfg,
		Command:    cmd.CommandPath(),
		Logger:     newLogger(cfg),
		Registerer: opts.registerer,
		NoJournal:  opts.readOnly,
	})
	if errors.Is(err, session.ErrNotInitialized) {
		return nil, fmt.Errorf(".loom not initialized. Run 'loom init' first")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open topology: %w", err)
	}
	return sess, nil
}

// closeProject closes sess and reports a close failure unless err is set.
func closeProject(sess *session.Session, err *error) {
	if cerr := sess.Close(context.Background()); cerr != nil && *err == nil {
		*err = fmt.Errorf("failed to close session: %w", cerr)
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseAssignments parses key=value arguments with float values.
func parseAssignments(args []string) (map[string]float64, error) {
	out := make(map[string]float64, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q (want key=value)", arg)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %q", key, raw)
		}
		out[key] = v
	}
	return out, nil
}

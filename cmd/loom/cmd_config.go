package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/loom/internal/config"
	"github.com/nvandessel/loom/internal/hebbian"
	"github.com/nvandessel/loom/internal/store"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage loom configuration",
		Long: `View and modify loom configuration settings.

Settings are layered: defaults, then ~/.loom/config.yaml, then
.loom/config.yaml in the project, then LOOM_* environment variables.
"set" writes the project file unless --global is given.

Engine sizes (engine.dimension, engine.node_capacity, engine.edges_per_node)
and persistence.precision are fixed once a topology exists.

Examples:
  loom config list
  loom config get learning.rule
  loom config set learning.rule oja
  loom config set logging.level debug --global`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)
	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.LoadProject(root)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := config.LoadProject(root)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"key": key, "value": value})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			global, _ := cmd.Flags().GetBool("global")
			key, value := args[0], args[1]

			path := config.ProjectPath(root)
			if global {
				if err := store.EnsureGlobalLoomDir(); err != nil {
					return err
				}
				dir, err := store.GlobalLoomPath()
				if err != nil {
					return err
				}
				path = filepath.Join(dir, "config.yaml")
			}

			cfg := config.Default()
			if _, err := os.Stat(path); err == nil {
				if cfg, err = config.LoadFromFile(path); err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			}
			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"status": "updated", "key": key, "value": value, "path": path})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", key, value, path)
			return nil
		},
	}
	cmd.Flags().Bool("global", false, "Write ~/.loom/config.yaml instead of the project file")
	return cmd
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.LoomConfig, key string) (any, bool) {
	switch key {
	case "engine.dimension":
		return cfg.Engine.Dimension, true
	case "engine.node_capacity":
		return cfg.Engine.NodeCapacity, true
	case "engine.edges_per_node":
		return cfg.Engine.EdgesPerNode, true
	case "engine.time_step":
		return cfg.Engine.TimeStep, true
	case "engine.diffusion":
		return cfg.Engine.Diffusion, true
	case "engine.workers":
		return cfg.Engine.Workers, true
	case "learning.learning_rate":
		return cfg.Learning.LearningRate, true
	case "learning.threshold":
		return cfg.Learning.Threshold, true
	case "learning.rule":
		return cfg.Learning.Rule, true
	case "hyperedge.threshold":
		return cfg.Hyperedge.Threshold, true
	case "consolidation.interval":
		return cfg.Consolidation.Interval, true
	case "consolidation.compact_every":
		return cfg.Consolidation.CompactEvery, true
	case "persistence.precision":
		return cfg.Persistence.Precision, true
	case "persistence.compress":
		return cfg.Persistence.Compress, true
	case "persistence.checkpoint_every":
		return cfg.Persistence.CheckpointEvery, true
	case "persistence.max_checkpoints":
		return cfg.Persistence.MaxCheckpoints, true
	case "persistence.max_checkpoint_age":
		return cfg.Persistence.MaxCheckpointAge.String(), true
	case "logging.level":
		return cfg.Logging.Level, true
	case "logging.format":
		return cfg.Logging.Format, true
	case "metrics.enabled":
		return cfg.Metrics.Enabled, true
	case "metrics.addr":
		return cfg.Metrics.Addr, true
	case "mcp.rate_limit":
		return cfg.MCP.RateLimit, true
	case "mcp.burst":
		return cfg.MCP.Burst, true
	case "mcp.ticks_per_call":
		return cfg.MCP.TicksPerCall, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.LoomConfig, key, value string) error {
	var err error
	switch key {
	case "engine.dimension":
		cfg.Engine.Dimension, err = strconv.Atoi(value)
	case "engine.node_capacity":
		cfg.Engine.NodeCapacity, err = strconv.Atoi(value)
	case "engine.edges_per_node":
		cfg.Engine.EdgesPerNode, err = strconv.Atoi(value)
	case "engine.time_step":
		cfg.Engine.TimeStep, err = strconv.ParseFloat(value, 64)
	case "engine.diffusion":
		cfg.Engine.Diffusion, err = strconv.ParseFloat(value, 64)
	case "engine.workers":
		cfg.Engine.Workers, err = strconv.Atoi(value)
	case "learning.learning_rate":
		cfg.Learning.LearningRate, err = strconv.ParseFloat(value, 64)
	case "learning.threshold":
		cfg.Learning.Threshold, err = strconv.ParseFloat(value, 64)
	case "learning.rule":
		cfg.Learning.Rule = hebbian.Rule(value)
	case "hyperedge.threshold":
		cfg.Hyperedge.Threshold, err = strconv.ParseFloat(value, 64)
	case "consolidation.interval":
		cfg.Consolidation.Interval, err = strconv.ParseUint(value, 10, 64)
	case "consolidation.compact_every":
		cfg.Consolidation.CompactEvery, err = strconv.Atoi(value)
	case "persistence.precision":
		cfg.Persistence.Precision = value
	case "persistence.compress":
		cfg.Persistence.Compress, err = strconv.ParseBool(value)
	case "persistence.checkpoint_every":
		cfg.Persistence.CheckpointEvery, err = strconv.ParseUint(value, 10, 64)
	case "persistence.max_checkpoints":
		cfg.Persistence.MaxCheckpoints, err = strconv.Atoi(value)
	case "persistence.max_checkpoint_age":
		cfg.Persistence.MaxCheckpointAge, err = time.ParseDuration(value)
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.format":
		cfg.Logging.Format = value
	case "metrics.enabled":
		cfg.Metrics.Enabled, err = strconv.ParseBool(value)
	case "metrics.addr":
		cfg.Metrics.Addr = value
	case "mcp.rate_limit":
		cfg.MCP.RateLimit, err = strconv.ParseFloat(value, 64)
	case "mcp.burst":
		cfg.MCP.Burst, err = strconv.Atoi(value)
	case "mcp.ticks_per_call":
		cfg.MCP.TicksPerCall, err = strconv.Atoi(value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q", key, value)
	}
	return nil
}

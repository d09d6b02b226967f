package main

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/nvandessel/loom/internal/config"
	"github.com/nvandessel/loom/internal/hebbian"
	"github.com/nvandessel/loom/internal/vecmath"
)

func newContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show or set the context signals applied when a session opens",
		Long: `Context signals modulate learning. Stress damps it and curiosity
boosts it; other signals are kept for processors and telemetry. Values are
clamped to [0, 1] and stored in .loom/config.yaml.

Examples:
  loom context
  loom context set stress=0.6 curiosity=0.2
  loom context unset stress
  loom context clear`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			cfg, err := loadProjectFile(root)
			if err != nil {
				return err
			}
			return printContext(cmd, cfg.Context)
		},
	}
	cmd.AddCommand(newContextSetCmd(), newContextUnsetCmd(), newContextClearCmd())
	return cmd
}

func newContextSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <signal=value>...",
		Short: "Set context signals",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signals, err := parseAssignments(args)
			if err != nil {
				return err
			}
			return updateContext(cmd, func(ctx map[string]float64) {
				for k, v := range signals {
					ctx[k] = vecmath.Clamp(v, 0, 1)
				}
			})
		},
	}
}

func newContextUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <signal>...",
		Short: "Remove context signals",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateContext(cmd, func(ctx map[string]float64) {
				for _, k := range args {
					delete(ctx, k)
				}
			})
		},
	}
}

func newContextClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every context signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateContext(cmd, func(ctx map[string]float64) { clear(ctx) })
		},
	}
}

// updateContext applies fn to the project's context and saves it.
func updateContext(cmd *cobra.Command, fn func(map[string]float64)) error {
	root, _ := cmd.Flags().GetString("root")
	cfg, err := loadProjectFile(root)
	if err != nil {
		return err
	}
	if cfg.Context == nil {
		cfg.Context = make(map[string]float64)
	}
	fn(cfg.Context)
	if len(cfg.Context) == 0 {
		cfg.Context = nil
	}
	if err := cfg.Save(config.ProjectPath(root)); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return printContext(cmd, cfg.Context)
}

func printContext(cmd *cobra.Command, ctx map[string]float64) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	mod := float64(hebbian.NewModulation(ctx))
	if jsonOut {
		if ctx == nil {
			ctx = map[string]float64{}
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"context": ctx, "modulation": mod})
	}
	out := cmd.OutOrStdout()
	if len(ctx) == 0 {
		fmt.Fprintln(out, "No context signals set.")
	}
	for _, k := range slices.Sorted(maps.Keys(ctx)) {
		fmt.Fprintf(out, "  %s: %.2f\n", k, ctx[k])
	}
	fmt.Fprintf(out, "Learning modulation: %.3f\n", mod)
	return nil
}

// loadProjectFile reads .loom/config.yaml under root without the user and
// environment layers, so saving it does not copy them into the project.
func loadProjectFile(root string) (*config.LoomConfig, error) {
	path := config.ProjectPath(root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

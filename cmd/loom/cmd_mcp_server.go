package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/loom/internal/mcp"
	"github.com/nvandessel/loom/internal/ratelimit"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve the topology to AI tools over MCP (stdio)",
		Long: `Run a Model Context Protocol server on stdin/stdout that exposes the
project topology as loom_* tools and loom:// resources.

The topology is saved when the client disconnects unless --no-save is
given. Logs go to stderr; tool calls are audited to .loom/audit.jsonl.

Configure in your MCP client, for example:
  {"command": "loom", "args": ["mcp-server", "--root", "/path/to/project"]}`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			noSave, _ := cmd.Flags().GetBool("no-save")
			rateScale, _ := cmd.Flags().GetFloat64("rate-scale")

			sess, err := openProject(cmd, projectOptions{})
			if err != nil {
				return err
			}
			defer closeProject(sess, &err)

			cfg := sess.Config()
			var global *ratelimit.Limiter
			if cfg.MCP.RateLimit > 0 {
				global = ratelimit.NewLimiter(cfg.MCP.RateLimit, cfg.MCP.Burst)
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:         "loom",
				Version:      version,
				Session:      sess,
				Logger:       newLogger(cfg),
				Limiters:     ratelimit.NewToolLimiters().Scale(rateScale),
				GlobalLimit:  global,
				TicksPerCall: cfg.MCP.TicksPerCall,
				AutoSave:     !noSave,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().Bool("no-save", false, "Don't save the topology when the client disconnects")
	cmd.Flags().Float64("rate-scale", 1, "Multiply every per-tool rate limit by this factor")
	return cmd
}

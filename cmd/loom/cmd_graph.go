package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/loom/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the topology graph",
		Long: `Output the topology in DOT (Graphviz) or JSON format, or serve both
over HTTP with --serve.

Examples:
  loom graph | dot -Tsvg > loom.svg
  loom graph --format json -o graph.json
  loom graph --serve`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			serve, _ := cmd.Flags().GetBool("serve")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			addr, _ := cmd.Flags().GetString("addr")

			f, err := visualization.ParseFormat(format)
			if err != nil {
				return err
			}

			sess, err := openProject(cmd, projectOptions{readOnly: true})
			if err != nil {
				return err
			}
			defer closeProject(sess, &err)

			if serve {
				return runGraphServer(cmd, visualization.NewServer(sess.Engine(), addr, nil), noOpen)
			}

			w := cmd.OutOrStdout()
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer file.Close()
				w = file
			}

			switch f {
			case visualization.FormatDOT:
				fmt.Fprint(w, visualization.RenderDOT(sess.Engine()))
			case visualization.FormatJSON:
				if err := printJSON(w, visualization.RenderJSON(sess.Engine())); err != nil {
					return fmt.Errorf("encode JSON: %w", err)
				}
			}
			if output != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot or json")
	cmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().Bool("serve", false, "Serve /graph.json and /graph.dot over HTTP")
	cmd.Flags().Bool("no-open", false, "Don't open a browser when serving")
	cmd.Flags().String("addr", "", "Listen address when serving (default: a free localhost port)")
	return cmd
}

// runGraphServer serves the topology and blocks until Ctrl-C.
func runGraphServer(cmd *cobra.Command, srv *visualization.Server, noOpen bool) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	// Wait for server to start
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && srv.Addr() == "" {
		select {
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		case <-time.After(10 * time.Millisecond):
		}
	}
	addr := srv.Addr()
	if addr == "" {
		return fmt.Errorf("server failed to start")
	}

	url := "http://" + addr
	fmt.Fprintf(cmd.OutOrStdout(), "Graph server running at %s\n", url)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

	if !noOpen {
		if err := visualization.OpenBrowser(url + "/graph.json"); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

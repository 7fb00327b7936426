package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rollscan/rollscan/internal/aggregator"
	"github.com/rollscan/rollscan/internal/config"
	"github.com/rollscan/rollscan/internal/orchestrator"
	"github.com/rollscan/rollscan/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Rollscan server",
	Long: `Start the Rollscan HTTP server.

On startup, interrupted extraction runs found in the database are
resumed where they left off. The server shuts down gracefully on
Ctrl+C or SIGTERM, leaving in-flight runs resumable.

The server provides:
  - /health         - Basic server health check
  - /api/documents  - Document upload, listing, and extraction results
  - /api/runs       - Run status, cancellation, and targeted retry

Examples:
  rollscan serve                 # Start on default port 8090
  rollscan serve --port 3000     # Start on custom port
  rollscan serve --host 0.0.0.0  # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, err := openHome()
		if err != nil {
			return err
		}

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cm.WatchConfig()
		cfg := cm.Get()

		st, err := openStore(h)
		if err != nil {
			return err
		}
		defer st.Close()

		ex, err := buildExtractor(cfg, logger)
		if err != nil {
			return err
		}

		agg := aggregator.New(st, logger)
		orch := orchestrator.New(st, ex, agg, orchestratorConfig(cfg), logger)

		if err := orch.Resume(ctx); err != nil {
			return err
		}

		host := cfg.Server.Host
		if serveHost != "" {
			host = serveHost
		}
		port := cfg.Server.Port
		if servePort != 0 {
			port = servePort
		}

		srv, err := server.New(server.Config{
			Host:         host,
			Port:         port,
			Store:        st,
			Orchestrator: orch,
			Aggregator:   agg,
			Home:         h,
			Logger:       logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")

	rootCmd.AddCommand(serveCmd)
}

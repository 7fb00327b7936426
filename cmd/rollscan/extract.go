package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rollscan/rollscan/internal/aggregator"
	"github.com/rollscan/rollscan/internal/config"
	"github.com/rollscan/rollscan/internal/orchestrator"
	"github.com/rollscan/rollscan/internal/types"
)

var (
	extractMaxPages int
	extractRetries  int
)

var extractCmd = &cobra.Command{
	Use:   "extract <document-id>",
	Short: "Run extraction for an ingested document",
	Long: `Run extraction for an ingested document and wait for it to finish.

The document is split into page segments, each segment is extracted
under the configured concurrency and rate budget, and results are
merged into the database. Exits once the run reaches a terminal state.`,
	Args: cobra.ExactArgs(1),
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
		defer orch.Close()

		run, err := orch.StartRun(ctx, args[0], types.RunConfig{
			MaxPagesPerCall: extractMaxPages,
			MaxRetries:      extractRetries,
		})
		if err != nil {
			return err
		}
		fmt.Printf("run %s started (%d pages per call, %d retries)\n",
			run.ID, run.Config.MaxPagesPerCall, run.Config.MaxRetries)

		// Cancel the run on Ctrl+C, then let the pool drain. The cancel
		// write uses a fresh context because the signal context is
		// already done by the time it fires.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				orch.CancelRun(context.Background(), run.ID)
			case <-done:
			}
		}()
		orch.Wait()
		close(done)

		snap, err := orch.GetRunStatus(context.Background(), run.ID)
		if err != nil {
			return err
		}
		printRunSummary(snap)

		if snap.Run.Status != types.RunCompleted {
			return fmt.Errorf("run finished %s", snap.Run.Status)
		}
		return nil
	},
}

func printRunSummary(snap *types.RunSnapshot) {
	fmt.Printf("run %s: %s\n", snap.Run.ID, snap.Run.Status)
	if snap.Run.FinishedAt != nil {
		fmt.Printf("  duration: %s\n", snap.Run.FinishedAt.Sub(snap.Run.StartedAt).Round(time.Second))
	}
	for _, seg := range snap.Segments {
		line := fmt.Sprintf("  segment %d [%d,%d): %s (%d attempts)",
			seg.Segment.Index, seg.Segment.PageStart, seg.Segment.PageEnd, seg.Status, seg.AttemptCount)
		if seg.LastError != "" {
			line += " - " + seg.LastError
		}
		fmt.Println(line)
	}
}

func init() {
	extractCmd.Flags().IntVar(&extractMaxPages, "max-pages", 0, "Pages per extraction call (overrides config)")
	extractCmd.Flags().IntVar(&extractRetries, "retries", 0, "Per-segment retry budget (overrides config)")

	rootCmd.AddCommand(extractCmd)
}

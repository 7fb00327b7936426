package main

import (
	"github.com/spf13/cobra"

	"github.com/rollscan/rollscan/version"
)

var (
	cfgFile string
	homeDir string
)

var rootCmd = &cobra.Command{
	Use:   "rollscan",
	Short: "Electoral roll extraction service with AI-powered PDF parsing",
	Long: `Rollscan turns scanned electoral roll PDFs into structured voter
records using AI extraction.

Documents are split into bounded page segments, each segment is
extracted by an AI provider under a concurrency and rate budget, and
the per-segment results are merged with boundary deduplication. Runs
survive process restarts: interrupted work is resumed from the store.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.rollscan/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "rollscan home directory (default: ~/.rollscan)",
	)

	rootCmd.AddCommand(versionCmd)
}

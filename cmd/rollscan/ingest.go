package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rollscan/rollscan/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <pdf-path>",
	Short: "Ingest an electoral roll PDF",
	Long: `Ingest an electoral roll PDF into the rollscan home directory.

The PDF is page-counted, copied under ~/.rollscan/documents, and
registered in the database. Extraction is started separately with
"rollscan extract" or via the HTTP API.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, err := openHome()
		if err != nil {
			return err
		}
		st, err := openStore(h)
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := ingest.Ingest(cmd.Context(), st, h, ingest.Request{
			PDFPath: args[0],
			Logger:  logger,
		})
		if err != nil {
			return err
		}

		fmt.Printf("document %s ingested (%d pages)\n", result.DocumentID, result.PageCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

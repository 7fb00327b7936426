// Package ingest handles electoral-roll intake from PDF files.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/rollscan/rollscan/internal/home"
	"github.com/rollscan/rollscan/internal/segmenter"
	"github.com/rollscan/rollscan/internal/store"
	"github.com/rollscan/rollscan/internal/types"
)

// countPages is a seam for tests; production uses the pdfcpu-backed counter.
var countPages = segmenter.PageCount

// Request contains the parameters for ingesting a roll PDF.
type Request struct {
	PDFPath string       // source PDF path
	Logger  *slog.Logger // optional logger for progress updates
}

// Result contains the result of a successful ingest operation.
type Result struct {
	DocumentID string
	PageCount  int
	StoredPath string
}

// Ingest validates the PDF, copies it under the home directory, and
// creates a Document record. The stored copy is the canonical source for
// all later extraction runs; the input file is never referenced again.
func Ingest(ctx context.Context, st store.Store, homeDir *home.Dir, req Request) (*Result, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}

	if req.PDFPath == "" {
		return nil, fmt.Errorf("no PDF path provided")
	}
	if _, err := os.Stat(req.PDFPath); err != nil {
		return nil, fmt.Errorf("PDF not found: %s", req.PDFPath)
	}

	pageCount, err := countPages(req.PDFPath)
	if err != nil {
		return nil, fmt.Errorf("reading page count from %s: %w", req.PDFPath, err)
	}

	if err := homeDir.EnsureExists(); err != nil {
		return nil, err
	}

	documentID := uuid.New().String()
	storedPath := homeDir.DocumentPath(documentID)
	if err := copyFile(req.PDFPath, storedPath); err != nil {
		return nil, fmt.Errorf("copying PDF into home directory: %w", err)
	}

	doc := &types.Document{
		ID:         documentID,
		SourcePath: storedPath,
		PageCount:  pageCount,
		Status:     types.DocumentUploaded,
		CreatedAt:  time.Now().UTC(),
	}
	if err := st.CreateDocument(ctx, doc); err != nil {
		os.Remove(storedPath)
		return nil, fmt.Errorf("creating document record: %w", err)
	}

	log.Info("ingest complete", "document_id", documentID, "pages", pageCount)

	return &Result{
		DocumentID: documentID,
		PageCount:  pageCount,
		StoredPath: storedPath,
	}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rollscan/rollscan/internal/home"
	"github.com/rollscan/rollscan/internal/store"
	"github.com/rollscan/rollscan/internal/types"
)

func stubPageCount(t *testing.T, pages int) {
	t.Helper()
	orig := countPages
	countPages = func(string) (int, error) { return pages, nil }
	t.Cleanup(func() { countPages = orig })
}

func TestIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("copies the PDF and creates a document", func(t *testing.T) {
		stubPageCount(t, 25)

		src := filepath.Join(t.TempDir(), "roll.pdf")
		if err := os.WriteFile(src, []byte("%PDF-1.4 test"), 0o644); err != nil {
			t.Fatalf("writing source pdf: %v", err)
		}

		homeDir, _ := home.New(t.TempDir())
		st := store.NewMemory()

		result, err := Ingest(ctx, st, homeDir, Request{PDFPath: src})
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if result.PageCount != 25 {
			t.Errorf("page count = %d, want 25", result.PageCount)
		}

		// The stored copy must live under the home documents directory.
		if result.StoredPath != homeDir.DocumentPath(result.DocumentID) {
			t.Errorf("stored path = %s, want %s", result.StoredPath, homeDir.DocumentPath(result.DocumentID))
		}
		data, err := os.ReadFile(result.StoredPath)
		if err != nil {
			t.Fatalf("reading stored copy: %v", err)
		}
		if string(data) != "%PDF-1.4 test" {
			t.Error("stored copy does not match source")
		}

		doc, err := st.GetDocument(ctx, result.DocumentID)
		if err != nil {
			t.Fatalf("GetDocument() error = %v", err)
		}
		if doc.Status != types.DocumentUploaded {
			t.Errorf("status = %s, want uploaded", doc.Status)
		}
		if doc.SourcePath != result.StoredPath {
			t.Errorf("source path = %s, want stored copy", doc.SourcePath)
		}
	})

	t.Run("rejects a missing file", func(t *testing.T) {
		homeDir, _ := home.New(t.TempDir())
		st := store.NewMemory()
		if _, err := Ingest(ctx, st, homeDir, Request{PDFPath: "/does/not/exist.pdf"}); err == nil {
			t.Error("expected error for missing PDF")
		}
	})

	t.Run("rejects an empty path", func(t *testing.T) {
		homeDir, _ := home.New(t.TempDir())
		st := store.NewMemory()
		if _, err := Ingest(ctx, st, homeDir, Request{}); err == nil {
			t.Error("expected error for empty path")
		}
	})
}

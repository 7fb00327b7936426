// Package types provides shared types used across multiple packages.
// This package has no dependencies on other rollscan packages to avoid import cycles.
package types

import "time"

// DocumentStatus tracks a document through its lifecycle.
type DocumentStatus string

const (
	DocumentUploaded   DocumentStatus = "uploaded"
	DocumentSegmented  DocumentStatus = "segmented"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// Document is an uploaded electoral-roll scan.
type Document struct {
	ID         string         `json:"id"`
	SourcePath string         `json:"source_path"`
	PageCount  int            `json:"page_count"`
	Status     DocumentStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`

	// Header fields extracted from the first page, if any.
	Header *DocumentHeader `json:"header,omitempty"`
}

// DocumentHeader holds identifying data from a roll's header page.
type DocumentHeader struct {
	State            string `json:"state,omitempty"`
	ConstituencyName string `json:"constituency_name,omitempty"`
	ConstituencyNum  int    `json:"constituency_number,omitempty"`
	PartNumber       int    `json:"part_number,omitempty"`
	PollingStation   string `json:"polling_station,omitempty"`
	Language         string `json:"language,omitempty"`
}

// Segment is a contiguous page range of a document processed as one
// extraction unit. Segments are immutable once created. Each run persists
// its own segment rows so targeted re-runs can cover a subset of the
// document's pages without disturbing earlier runs' audit trail.
type Segment struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	RunID      string `json:"run_id"`
	Index      int    `json:"index"`      // sequence position within the run
	PageStart  int    `json:"page_start"` // inclusive
	PageEnd    int    `json:"page_end"`   // exclusive

	// HeaderContext carries constituency/part identification inferred for
	// this segment, inherited from the previous segment when the segment's
	// own first page has no header data. Best-effort annotation only.
	HeaderContext string `json:"header_context,omitempty"`
}

// Pages returns the number of pages the segment spans.
func (s Segment) Pages() int {
	return s.PageEnd - s.PageStart
}

// Location is constituency/hierarchy reference data. Locations are looked
// up by the aggregator, never created by it.
type Location struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	State    string `json:"state,omitempty"`
	District string `json:"district,omitempty"`
}

// Package segmenter splits a document's pages into the bounded page-range
// segments the orchestrator schedules for extraction.
package segmenter

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/rollscan/rollscan/internal/types"
)

// Config tunes segmentation.
type Config struct {
	// MaxPagesPerCall bounds each segment's page span.
	MaxPagesPerCall int
}

// Build partitions [0, pageCount) into contiguous, non-overlapping segments
// of at most MaxPagesPerCall pages each. The final segment takes the
// remainder. Identical inputs always yield an identical partition (segment
// IDs aside), which re-extraction comparisons rely on.
func Build(documentID string, pageCount int, cfg Config) ([]types.Segment, error) {
	if pageCount <= 0 {
		return nil, fmt.Errorf("invalid page count %d", pageCount)
	}
	if cfg.MaxPagesPerCall <= 0 {
		return nil, fmt.Errorf("invalid max pages per call %d", cfg.MaxPagesPerCall)
	}

	segments := make([]types.Segment, 0, (pageCount+cfg.MaxPagesPerCall-1)/cfg.MaxPagesPerCall)
	for start, index := 0, 0; start < pageCount; index++ {
		end := start + cfg.MaxPagesPerCall
		if end > pageCount {
			end = pageCount
		}
		segments = append(segments, types.Segment{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			Index:      index,
			PageStart:  start,
			PageEnd:    end,
		})
		start = end
	}
	return segments, nil
}

// CarryHeaderContext annotates segments with header context. pageHeader
// reports the identifying header inferred for a page ("" when the page has
// none); a segment whose first page lacks a header inherits the previous
// segment's context. The annotation is best effort: consumers must
// tolerate its absence.
func CarryHeaderContext(segments []types.Segment, pageHeader func(page int) string) {
	if pageHeader == nil {
		return
	}
	previous := ""
	for i := range segments {
		if h := pageHeader(segments[i].PageStart); h != "" {
			previous = h
		}
		segments[i].HeaderContext = previous
	}
}

// Verify checks the partition invariant: ordered, contiguous,
// non-overlapping coverage of [0, pageCount) with every span within bound.
// Used by the orchestrator before persisting segments built elsewhere.
func Verify(segments []types.Segment, pageCount, maxPagesPerCall int) error {
	if len(segments) == 0 {
		return fmt.Errorf("no segments for %d pages", pageCount)
	}
	next := 0
	for i, seg := range segments {
		if seg.Index != i {
			return fmt.Errorf("segment %d has index %d", i, seg.Index)
		}
		if seg.PageStart != next {
			return fmt.Errorf("segment %d starts at %d, want %d", i, seg.PageStart, next)
		}
		if seg.PageEnd <= seg.PageStart {
			return fmt.Errorf("segment %d has empty range [%d,%d)", i, seg.PageStart, seg.PageEnd)
		}
		if seg.Pages() > maxPagesPerCall {
			return fmt.Errorf("segment %d spans %d pages, max %d", i, seg.Pages(), maxPagesPerCall)
		}
		next = seg.PageEnd
	}
	if next != pageCount {
		return fmt.Errorf("segments cover [0,%d), want [0,%d)", next, pageCount)
	}
	return nil
}

package extract

import (
	"context"
	"time"

	"github.com/rollscan/rollscan/internal/types"
)

// Request describes one segment extraction call.
type Request struct {
	// SourcePath is the local path of the document PDF. Implementations
	// that stage files with the provider (Gemini file API) upload once per
	// path and reuse the handle across segments.
	SourcePath string

	// Page range, zero-based, end exclusive.
	PageStart int
	PageEnd   int

	// IncludeHeader asks the model to also extract the roll header block.
	// Set for the segment containing the first page.
	IncludeHeader bool

	// HeaderContext is the constituency/part annotation inferred for this
	// segment, passed to the model as disambiguation context.
	HeaderContext string

	PromptVersion string
	Timeout       time.Duration
}

// Result is a successful segment extraction.
type Result struct {
	Records []types.RawVoterRecord
	Header  *types.DocumentHeader

	// Provider metadata.
	ModelUsed        string
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
}

// Extractor is the AI extraction adapter. Implementations must return
// *Error values so the orchestrator can classify failures; any other error
// is treated as transient.
type Extractor interface {
	// Extract runs one segment call. The supplied context carries the
	// per-call deadline; exceeding it must surface as KindTimeout.
	Extract(ctx context.Context, req *Request) (*Result, error)

	// Name returns the provider identifier (e.g. "gemini").
	Name() string

	// RequestsPerMinute returns the provider rate limit for worker pacing.
	RequestsPerMinute() int
}

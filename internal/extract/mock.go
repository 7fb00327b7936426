package extract

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rollscan/rollscan/internal/types"
)

const MockName = "mock"

// Outcome is one scripted reply from the mock extractor.
type Outcome struct {
	Records []types.RawVoterRecord
	Header  *types.DocumentHeader
	Err     error
}

// Mock is an Extractor for testing. Outcomes can be scripted per page
// range; each call consumes the next outcome for its range, and ranges
// without a script fall back to Default.
type Mock struct {
	Latency time.Duration
	RPM     int
	Default Outcome

	mu      sync.Mutex
	scripts map[string][]Outcome
	calls   map[string]int
	total   int
}

// NewMock creates a mock extractor that succeeds with no records.
func NewMock() *Mock {
	return &Mock{
		RPM:     6000,
		scripts: make(map[string][]Outcome),
		calls:   make(map[string]int),
	}
}

// Script queues outcomes for the page range [start,end).
func (m *Mock) Script(start, end int, outcomes ...Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rangeKey(start, end)
	m.scripts[key] = append(m.scripts[key], outcomes...)
}

// Calls returns how many times the page range [start,end) was requested.
func (m *Mock) Calls(start, end int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[rangeKey(start, end)]
}

// TotalCalls returns the number of Extract invocations.
func (m *Mock) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

func (m *Mock) Name() string {
	return MockName
}

func (m *Mock) RequestsPerMinute() int {
	if m.RPM <= 0 {
		return 6000
	}
	return m.RPM
}

func (m *Mock) Extract(ctx context.Context, req *Request) (*Result, error) {
	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, Timeout(ctx.Err())
		case <-time.After(m.Latency):
		}
	}

	m.mu.Lock()
	key := rangeKey(req.PageStart, req.PageEnd)
	idx := m.calls[key]
	m.calls[key]++
	m.total++

	outcome := m.Default
	if queued, ok := m.scripts[key]; ok {
		if idx < len(queued) {
			outcome = queued[idx]
		} else if len(queued) > 0 {
			outcome = queued[len(queued)-1]
		}
	}
	m.mu.Unlock()

	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return &Result{
		Records:   outcome.Records,
		Header:    outcome.Header,
		ModelUsed: MockName,
	}, nil
}

func rangeKey(start, end int) string {
	return fmt.Sprintf("%d-%d", start, end)
}

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rollscan/rollscan/internal/aggregator"
	"github.com/rollscan/rollscan/internal/extract"
	"github.com/rollscan/rollscan/internal/orchestrator"
	"github.com/rollscan/rollscan/internal/store"
	"github.com/rollscan/rollscan/internal/types"
)

func testServer(t *testing.T, mock extract.Extractor) (*Server, store.Store, *orchestrator.Orchestrator) {
	t.Helper()
	st := store.NewMemory()
	agg := aggregator.New(st, nil)
	orch := orchestrator.New(st, mock, agg, orchestrator.Config{
		Workers:        2,
		RetryBaseDelay: time.Millisecond,
		DefaultRun:     types.RunConfig{MaxPagesPerCall: 10, CallTimeout: time.Second},
	}, nil)
	t.Cleanup(orch.Close)

	srv, err := New(Config{
		Store:        st,
		Orchestrator: orch,
		Aggregator:   agg,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, st, orch
}

func seedDocument(t *testing.T, st store.Store, pages int) *types.Document {
	t.Helper()
	doc := &types.Document{
		ID:         uuid.New().String(),
		SourcePath: "/tmp/roll.pdf",
		PageCount:  pages,
		Status:     types.DocumentSegmented,
		CreatedAt:  time.Now().UTC(),
	}
	if err := st.CreateDocument(t.Context(), doc); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	return doc
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := testServer(t, extract.NewMock())

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %s, want ok", resp.Status)
	}
}

func TestDocumentEndpoints(t *testing.T) {
	srv, st, _ := testServer(t, extract.NewMock())
	doc := seedDocument(t, st, 25)

	t.Run("get document", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/documents/"+doc.ID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var got types.Document
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if got.ID != doc.ID || got.PageCount != 25 {
			t.Errorf("document = %+v", got)
		}
	})

	t.Run("list documents", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/documents", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var got struct {
			Documents []types.Document `json:"documents"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if len(got.Documents) != 1 {
			t.Errorf("documents = %d, want 1", len(got.Documents))
		}
	})

	t.Run("unknown document is 404", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/documents/nope", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestRunEndpoints(t *testing.T) {
	mock := extract.NewMock()
	mock.Default = extract.Outcome{Records: []types.RawVoterRecord{
		{Name: "Asha Devi", SerialNumber: "1", Age: "34", Page: 1},
	}}

	srv, st, orch := testServer(t, mock)
	doc := seedDocument(t, st, 20)

	var runID string

	t.Run("start run", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/documents/"+doc.ID+"/runs", StartRunRequest{MaxRetries: 1})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
		}
		var run types.Run
		if err := json.NewDecoder(rec.Body).Decode(&run); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if run.DocumentID != doc.ID {
			t.Errorf("run document = %s, want %s", run.DocumentID, doc.ID)
		}
		if run.Config.MaxRetries != 1 {
			t.Errorf("run max retries = %d, want override 1", run.Config.MaxRetries)
		}
		runID = run.ID
	})

	t.Run("conflicting run is 409", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/documents/"+doc.ID+"/runs", nil)
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	orch.Wait()

	t.Run("run status snapshot", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/runs/"+runID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var snap types.RunSnapshot
		if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if snap.Run.Status != types.RunCompleted {
			t.Errorf("run status = %s, want completed", snap.Run.Status)
		}
		if len(snap.Segments) != 2 {
			t.Errorf("segments = %d, want 2", len(snap.Segments))
		}
	})

	t.Run("list runs", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/documents/"+doc.ID+"/runs", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var got struct {
			Runs []types.Run `json:"runs"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if len(got.Runs) != 1 {
			t.Errorf("runs = %d, want 1", len(got.Runs))
		}
	})

	t.Run("voters after completion", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/documents/"+doc.ID+"/voters", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var got struct {
			Voters []types.Voter `json:"voters"`
			Count  int           `json:"count"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if got.Count == 0 {
			t.Error("expected voters after a completed run")
		}
	})

	t.Run("retry with nothing failed is 422", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/runs/"+runID+"/retry", nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("metrics", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/metrics", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var m store.Metrics
		if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if m.TotalRuns != 1 || m.CompletedRuns != 1 {
			t.Errorf("metrics = %+v", m)
		}
	})
}

func TestCancelEndpoint(t *testing.T) {
	mock := extract.NewMock()
	mock.Latency = 50 * time.Millisecond
	srv, st, orch := testServer(t, mock)
	doc := seedDocument(t, st, 40)

	rec := doJSON(t, srv, http.MethodPost, "/api/documents/"+doc.ID+"/runs", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, want 202", rec.Code)
	}
	var run types.Run
	if err := json.NewDecoder(rec.Body).Decode(&run); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/runs/"+run.ID+"/cancel", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d, want 202", rec.Code)
	}
	orch.Wait()

	got, err := st.GetRun(t.Context(), run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Status != types.RunCancelled {
		t.Errorf("run status = %s, want cancelled", got.Status)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without dependencies")
	}
	if _, err := New(Config{Store: store.NewMemory()}); err == nil || !strings.Contains(err.Error(), "orchestrator") {
		t.Errorf("error = %v, want orchestrator requirement", err)
	}
}

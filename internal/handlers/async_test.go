package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mediastack/image-variant-pipeline/internal/dbosruntime"
	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

type fakeEnqueuer struct {
	last variant.RegenerateRequest
	err  error
}

func (f *fakeEnqueuer) RunAsync(_ context.Context, req variant.RegenerateRequest) (string, error) {
	f.last = req
	if f.err != nil {
		return "", f.err
	}
	return "run-123", nil
}

type fakeStatus struct {
	runs map[string]*dbosruntime.RunStatus
}

func (f *fakeStatus) GetRunStatus(_ context.Context, runID string) (*dbosruntime.RunStatus, bool, error) {
	s, ok := f.runs[runID]
	return s, ok, nil
}

type fakeRecorder struct {
	counts map[string]int
	err    error
}

func (f *fakeRecorder) Record(_ context.Context, assetID string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.counts[assetID]++
	return f.counts[assetID], nil
}

func newRouter(h *AsyncHandler) *chi.Mux {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestRegenerateAccepted(t *testing.T) {
	enq := &fakeEnqueuer{}
	rec := &fakeRecorder{counts: map[string]int{"asset-1": 2}}
	h := NewAsyncHandler(enq, &fakeStatus{}, rec, zerolog.Nop())

	body := `{"asset_id":"asset-1","specs":[{"suffix":"thumb","width":200,"height":150}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/regenerate", strings.NewReader(body))
	w := httptest.NewRecorder()
	newRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp variant.RegenerateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID != "run-123" || resp.DedupeSeenCount != 3 {
		t.Fatalf("resp = %+v", resp)
	}
	if enq.last.Job != variant.JobRegenerate {
		t.Fatalf("job not defaulted: %q", enq.last.Job)
	}
	if enq.last.Specs[0].Format != variant.FormatJPEG {
		t.Fatalf("spec not normalized: %+v", enq.last.Specs[0])
	}
}

func TestRegenerateRejectsBadRequests(t *testing.T) {
	h := NewAsyncHandler(&fakeEnqueuer{}, &fakeStatus{}, nil, zerolog.Nop())
	router := newRouter(h)

	bodies := []string{
		`not json`,
		`{"specs":[{"suffix":"t","width":1,"height":1}]}`,
		`{"asset_id":"asset-1"}`,
	}
	for _, body := range bodies {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/regenerate", strings.NewReader(body)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d", body, w.Code)
		}
	}
}

func TestRegenerateSurvivesLedgerFailure(t *testing.T) {
	enq := &fakeEnqueuer{}
	rec := &fakeRecorder{err: errors.New("db down")}
	h := NewAsyncHandler(enq, &fakeStatus{}, rec, zerolog.Nop())

	body := `{"asset_id":"asset-1","specs":[{"suffix":"thumb","width":200,"height":150}]}`
	w := httptest.NewRecorder()
	newRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/regenerate", strings.NewReader(body)))

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	var resp variant.RegenerateResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.DedupeSeenCount != 0 {
		t.Fatalf("seen count = %d, want 0 on ledger failure", resp.DedupeSeenCount)
	}
}

func TestStatusLookup(t *testing.T) {
	status := &fakeStatus{runs: map[string]*dbosruntime.RunStatus{
		"run-123": {RunID: "run-123", Status: "SUCCESS", Name: "regenerate", CreatedAt: 1700000000000, UpdatedAt: 1700000001000},
	}}
	h := NewAsyncHandler(&fakeEnqueuer{}, status, nil, zerolog.Nop())
	router := newRouter(h)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/runs/run-123", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got dbosruntime.RunStatus
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "SUCCESS" {
		t.Fatalf("got = %+v", got)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/runs/run-999", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing run status = %d", w.Code)
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/toinfinity/infinity-go/internal/config"
	"github.com/toinfinity/infinity-go/internal/model"
)

type recordedRequest struct {
	method string
	path   string
	query  map[string]string
	header http.Header
	body   []byte
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = map[string]string{}
		for k := range r.URL.Query() {
			rec.query[k] = r.URL.Query().Get(k)
		}
		rec.header = r.Header.Clone()
		rec.body, _ = io.ReadAll(r.Body)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	client := NewClient(&config.APIConfig{BaseURL: srv.URL, Token: "test-token", TimeoutSeconds: 5}, zerolog.Nop())
	return client, rec
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestSubmitBatchRequestShape(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, BatchRecord{ID: "b1", Name: "demo", JobRuns: []JobRunRecord{
			{ID: "j1", State: "pending"},
			{ID: "j2", State: "pending"},
		}})
	})

	record, err := client.SubmitBatch(context.Background(), "roomscene", "demo", model.JobKindPreview, []model.JobParams{
		{"height": 1.0},
		{"height": 2.0},
	})
	if err != nil {
		t.Fatalf("submit batch: %v", err)
	}
	if record.ID != "b1" || len(record.JobRuns) != 2 {
		t.Errorf("unexpected record: %+v", record)
	}

	if rec.method != http.MethodPost || rec.path != "/api/batch/" {
		t.Errorf("wrong endpoint: %s %s", rec.method, rec.path)
	}
	if got := rec.header.Get("Authorization"); got != "Token test-token" {
		t.Errorf("authorization header = %q", got)
	}
	if got := rec.header.Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %q", got)
	}
	if got := rec.header.Get("Accept"); got != "application/json" {
		t.Errorf("accept = %q", got)
	}

	var sent struct {
		Name    string `json:"name"`
		JobRuns []struct {
			Name        string          `json:"name"`
			IsPreview   bool            `json:"is_preview"`
			ParamValues model.JobParams `json:"param_values"`
		} `json:"job_runs"`
	}
	if err := json.Unmarshal(rec.body, &sent); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	if sent.Name != "demo" || len(sent.JobRuns) != 2 {
		t.Fatalf("unexpected body: %+v", sent)
	}
	for i, jr := range sent.JobRuns {
		if jr.Name != "roomscene" || !jr.IsPreview {
			t.Errorf("job run %d: %+v", i, jr)
		}
	}
	if sent.JobRuns[0].ParamValues["height"] != 1.0 || sent.JobRuns[1].ParamValues["height"] != 2.0 {
		t.Errorf("param order not preserved: %+v", sent.JobRuns)
	}
}

func TestRemoteErrorCarriesStatusAndBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("backend exploded"))
	})

	_, err := client.GetBatch(context.Background(), "b1")
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remoteErr.Status != http.StatusInternalServerError || remoteErr.Body != "backend exploded" {
		t.Errorf("remote error = %+v", remoteErr)
	}
}

func TestGetJobStatusesFiltersToRequestedIDs(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"id": "b1",
			"job_runs": []JobStatusRecord{
				{ID: "j1", State: "succeeded", ResultURL: "http://r/1"},
				{ID: "j2", InProgress: true},
				{ID: "j3", State: "failed"},
			},
		})
	})

	statuses, err := client.GetJobStatuses(context.Background(), "b1", []string{"j1", "j3"})
	if err != nil {
		t.Fatalf("get job statuses: %v", err)
	}
	if rec.path != "/api/batch/summary/b1/" {
		t.Errorf("wrong path: %s", rec.path)
	}
	if len(statuses) != 2 || statuses[0].ID != "j1" || statuses[1].ID != "j3" {
		t.Errorf("expected only j1 and j3, got %+v", statuses)
	}
	if statuses[0].ResultURL != "http://r/1" {
		t.Errorf("result URL lost: %+v", statuses[0])
	}
}

func TestListBatchesQueryRange(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []model.BatchListEntry{{ID: "b1", Name: "demo", JobCount: 3}})
	})

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	entries, err := client.ListBatches(context.Background(), start, end)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "b1" {
		t.Errorf("entries = %+v", entries)
	}
	if rec.query["start_time"] != start.Format(time.RFC3339Nano) || rec.query["end_time"] != end.Format(time.RFC3339Nano) {
		t.Errorf("query range = %v", rec.query)
	}
}

func TestListBatchesRejectsInvertedRangeLocally(t *testing.T) {
	called := false
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	now := time.Now()
	if _, err := client.ListBatches(context.Background(), now, now.Add(-time.Hour)); err == nil {
		t.Fatal("inverted range must be rejected")
	}
	if called {
		t.Error("inverted range should not reach the server")
	}
}

func TestGetGeneratorDecodesSchema(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"name": "roomscene",
			"params": [
				{"type": "float", "name": "height", "default_value": 1.7,
				 "options": {"min": 0.5, "max": 3.0}},
				{"type": "str", "name": "style", "default_value": "day",
				 "options": {"choices": ["day", "night"]}}
			],
			"options": {"preview": true}
		}`))
	})

	info, err := client.GetGenerator(context.Background(), "roomscene")
	if err != nil {
		t.Fatalf("get generator: %v", err)
	}
	if rec.path != "/api/jobs/roomscene/" {
		t.Errorf("wrong path: %s", rec.path)
	}
	if info.Name != "roomscene" || !info.Options.Preview {
		t.Errorf("info = %+v", info)
	}
	height, ok := info.Param("height")
	if !ok || height.Options == nil || *height.Options.Min != 0.5 || *height.Options.Max != 3.0 {
		t.Errorf("height schema = %+v", height)
	}
	style, ok := info.Param("style")
	if !ok || style.Options == nil || len(style.Options.Choices) != 2 {
		t.Errorf("style schema = %+v", style)
	}
}

func TestGetUsageRange(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, model.UsageStats{Counts: map[string]int{"roomscene": 7}, Total: 7})
	})

	stats, err := client.GetUsageLastNDays(context.Background(), 30)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if rec.path != "/api/job_runs/counts/" {
		t.Errorf("wrong path: %s", rec.path)
	}
	if stats.Total != 7 || stats.Counts["roomscene"] != 7 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestFetchArtifactOmitsAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("zip bytes"))
	}))
	defer srv.Close()

	client := NewClient(&config.APIConfig{BaseURL: "http://unused", Token: "test-token"}, zerolog.Nop())
	body, err := client.FetchArtifact(context.Background(), srv.URL+"/signed/artifact")
	if err != nil {
		t.Fatalf("fetch artifact: %v", err)
	}
	if string(body) != "zip bytes" {
		t.Errorf("body = %q", body)
	}
	if gotAuth != "" {
		t.Errorf("pre-signed fetch must not send auth, got %q", gotAuth)
	}
}

func TestFetchArtifactErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(&config.APIConfig{BaseURL: "http://unused", Token: "t"}, zerolog.Nop())
	_, err := client.FetchArtifact(context.Background(), srv.URL+"/signed/artifact")
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remoteErr.Status != http.StatusNotFound {
		t.Errorf("status = %d", remoteErr.Status)
	}
}

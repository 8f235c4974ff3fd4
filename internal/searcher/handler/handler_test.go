package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/runner"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/config"
)

func newMux(t *testing.T) *http.ServeMux {
	t.Helper()
	tok := tokenizer.New(tokenizer.Config{Mode: tokenizer.ModeWhitespace})
	idx, err := indexer.NewEngine(config.IndexConfig{DataDir: t.TempDir()}, tok, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	for i, text := range []string{"cat cat dog", "dog emu", "fox"} {
		if _, err := idx.IndexDocument(fmt.Sprintf("D%d", i), text); err != nil {
			t.Fatal(err)
		}
	}
	r := runner.New(executor.New(idx, ranker.DirichletLM{Mu: ranker.DefaultMu}, tok, nil), nil)
	mux := http.NewServeMux()
	New(r, idx, nil, nil, "session", 10, 100).Register(mux)
	return mux
}

func get(t *testing.T, mux *http.ServeMux, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestSearch(t *testing.T) {
	mux := newMux(t)
	rec := get(t, mux, "/api/v1/search?q=dog&limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp SearchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %+v", resp.Results)
	}
	if resp.Results[0].DocNo != "D1" || resp.Results[0].Rank != 1 || resp.Results[1].DocNo != "D0" {
		t.Errorf("results = %+v, want D1 then D0", resp.Results)
	}
	if resp.Expanded || resp.Evaluated != "dog" {
		t.Errorf("response = %+v", resp)
	}
}

func TestSearchBadRequests(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"missing query", "/api/v1/search"},
		{"bad limit", "/api/v1/search?q=dog&limit=0"},
		{"bad expand", "/api/v1/search?q=dog&expand=maybe"},
		{"expansion disabled", "/api/v1/search?q=dog&expand=true"},
		{"malformed weight", "/api/v1/search?q=dog%5E"},
	}
	mux := newMux(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := get(t, mux, tt.url); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body)
			}
		})
	}
}

func TestStatsCountsQueries(t *testing.T) {
	mux := newMux(t)
	get(t, mux, "/api/v1/search?q=dog")
	get(t, mux, "/api/v1/search?q=zebra")

	rec := get(t, mux, "/api/v1/stats")
	var body struct {
		Index   indexer.Stats      `json:"index"`
		Queries analytics.RunStats `json:"queries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Index.Documents != 3 {
		t.Errorf("documents = %d, want 3", body.Index.Documents)
	}
	if body.Queries.Queries != 2 || body.Queries.ZeroResultCount != 1 {
		t.Errorf("queries = %+v", body.Queries)
	}
}

func TestCacheDisabled(t *testing.T) {
	mux := newMux(t)
	if rec := get(t, mux, "/api/v1/cache/stats"); rec.Code != http.StatusOK {
		t.Errorf("cache stats status = %d", rec.Code)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("invalidate status = %d, want 503", rec.Code)
	}
}

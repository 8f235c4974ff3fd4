// Package handler serves ad-hoc searches over HTTP for interactive
// inspection of a ranking configuration.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/runner"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/trec"
	apperrors "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/logger"
)

// Index is the part of the index the handler reports on.
type Index interface {
	trec.ExternalIDs
	Stats() indexer.Stats
}

type Result struct {
	Rank  int     `json:"rank"`
	DocNo string  `json:"docno"`
	Score float64 `json:"score"`
}

type SearchResponse struct {
	Query     string   `json:"query"`
	Evaluated string   `json:"evaluated"`
	Expanded  bool     `json:"expanded"`
	CacheHit  bool     `json:"cache_hit"`
	Clarity   float64  `json:"clarity"`
	LatencyMs float64  `json:"latency_ms"`
	Results   []Result `json:"results"`
}

// sessionWindow bounds the latencies and query IDs kept for /api/v1/stats.
const sessionWindow = 10000

type Handler struct {
	runner       *runner.Runner
	index        Index
	cache        *cache.QueryCache
	events       runner.EventSink
	aggregator   *analytics.Aggregator
	sessionID    string
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New returns a handler. queryCache and events may be nil. Events are tagged
// with sessionID as their run id.
func New(r *runner.Runner, idx Index, queryCache *cache.QueryCache, events runner.EventSink, sessionID string, defaultLimit, maxResults int) *Handler {
	return &Handler{
		runner:       r,
		index:        idx,
		cache:        queryCache,
		events:       events,
		aggregator:   analytics.NewWindowedAggregator(sessionID, sessionWindow),
		sessionID:    sessionID,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Search handles GET /api/v1/search?q=&expand=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	text := r.URL.Query().Get("q")
	if text == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.maxResults)
	}

	expand := false
	if expandStr := r.URL.Query().Get("expand"); expandStr != "" {
		parsed, err := strconv.ParseBool(expandStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "expand must be a boolean")
			return
		}
		expand = parsed
	}
	if expand && !h.runner.CanExpand() {
		h.writeError(w, http.StatusBadRequest, "feedback is disabled")
		return
	}

	requestID := logger.RequestID(ctx)
	out, err := h.runner.Evaluate(ctx, parser.Query{ID: requestID, Text: text}, limit, expand)
	if err != nil {
		log.Error("search failed", "query", text, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed")
		return
	}
	h.track(out, requestID)
	if out.Err != nil {
		h.writeError(w, http.StatusBadRequest, out.Err.Error())
		return
	}

	lines, err := trec.Lines(requestID, out.Hits, limit, h.index, "")
	if err != nil {
		log.Error("resolving docnos failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed")
		return
	}
	resp := SearchResponse{
		Query:     text,
		Evaluated: out.Query.Text,
		Expanded:  out.Expanded,
		CacheHit:  out.CacheHit,
		Clarity:   out.Clarity,
		LatencyMs: float64(out.Latency.Microseconds()) / 1000,
		Results:   make([]Result, len(lines)),
	}
	for i, l := range lines {
		resp.Results[i] = Result{Rank: l.Rank, DocNo: l.DocNo, Score: l.Score}
	}

	log.Info("search completed",
		"query", text,
		"returned", len(resp.Results),
		"expanded", out.Expanded,
		"cache_hit", out.CacheHit,
		"latency_ms", resp.LatencyMs,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// Stats reports the index size and the queries answered since start.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"index":   h.index.Stats(),
		"queries": h.aggregator.Stats(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) track(out *runner.Outcome, requestID string) {
	event := h.runner.Event(h.sessionID, out)
	event.RequestID = requestID
	h.aggregator.Record(event)
	if h.events != nil {
		h.events.Track(event)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}


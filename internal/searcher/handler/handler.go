package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/metrics"
)

type SearchExecutor interface {
	Search(ctx context.Context, query string, limit int) (*executor.SearchResult, error)
	Explain(ctx context.Context, query string, position int) (*executor.Explanation, error)
	Rebuild(ctx context.Context) (*executor.RebuildResult, error)
	Stats() executor.Stats
	Generation() uint64
}

type Handler struct {
	executor     SearchExecutor
	cache        *cache.QueryCache
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New builds the HTTP handlers. queryCache and m may be nil.
func New(exec SearchExecutor, queryCache *cache.QueryCache, m *metrics.Metrics, defaultLimit, maxResults int) *Handler {
	return &Handler{
		executor:     exec,
		cache:        queryCache,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/explain", h.Explain)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
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
		limit = parsed
	}
	switch {
	case h.maxResults > 0 && (limit < 1 || limit > h.maxResults):
		limit = h.maxResults
	case limit < 1:
		limit = indexer.All
	}

	var result *executor.SearchResult
	var err error
	cacheHit := false

	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, query, limit, h.executor.Generation(), func() (*executor.SearchResult, error) {
			return h.executor.Search(ctx, query, limit)
		})
	} else {
		result, err = h.executor.Search(ctx, query, limit)
	}

	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.writeAppError(w, err)
		return
	}

	latency := time.Since(start)
	if h.metrics != nil {
		cacheStatus := "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
		h.metrics.SearchResultsCount.Observe(float64(len(result.Results)))
	}

	log.Info("search completed",
		"query", query,
		"total_docs", result.TotalDocs,
		"returned", len(result.Results),
		"generation", result.Generation,
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	position, err := strconv.Atoi(r.URL.Query().Get("position"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "position must be an integer")
		return
	}
	ex, err := h.executor.Explain(r.Context(), query, position)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ex)
}

// Rebuild refits the index from the record store. The rebuild outlives a
// client disconnect.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	log := logger.FromContext(ctx)

	res, err := h.executor.Rebuild(ctx)
	if err != nil {
		log.Error("index rebuild failed", "error", err)
		h.writeAppError(w, err)
		return
	}
	log.Info("index rebuilt",
		"generation", res.Generation,
		"documents", res.Documents,
		"duration", res.Duration,
	)
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.executor.Stats())
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

// writeAppError maps err to its status. Server-side failures get a generic
// message.
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		message = "internal error"
	}
	h.writeError(w, status, message)
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/records"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/metrics"
)

var corpus = []records.Record{
	{ID: "doc-1", Text: "the quick brown fox"},
	{ID: "doc-2", Text: "the lazy dog"},
	{ID: "doc-3", Text: "brown dogs and brown foxes"},
}

type memBackend struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memBackend) FlushByPattern(_ context.Context, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.data))
	m.data = map[string]string{}
	return n, nil
}

func newExecutor() *executor.Executor {
	return executor.New(executor.Options{
		Source: records.NewMemorySource(corpus),
		Engine: indexer.Options{
			Params:    index.DefaultParams(),
			Tokenizer: tokenizer.New(tokenizer.Config{Stopwords: []string{"the", "and"}}),
		},
	})
}

func newServer(t *testing.T, exec *executor.Executor, qc *cache.QueryCache) *httptest.Server {
	t.Helper()
	h := New(exec, qc, metrics.New(prometheus.NewRegistry()), 2, 3)
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestSearch_BeforeRebuildIsUnavailable(t *testing.T) {
	srv := newServer(t, newExecutor(), nil)
	status, body := do(t, http.MethodGet, srv.URL+"/api/v1/search?q=fox")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body["error"], "not fitted")

	status, body = do(t, http.MethodGet, srv.URL+"/api/v1/index/stats")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["fitted"])
}

func TestRebuildThenSearch(t *testing.T) {
	srv := newServer(t, newExecutor(), nil)

	status, body := do(t, http.MethodPost, srv.URL+"/api/v1/index/rebuild")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3.0, body["documents"])
	assert.Equal(t, 1.0, body["generation"])

	status, body = do(t, http.MethodGet, srv.URL+"/api/v1/search?q=brown+fox")
	require.Equal(t, http.StatusOK, status)
	results := body["results"].([]any)
	require.Len(t, results, 2, "default limit")
	first := results[0].(map[string]any)
	assert.Equal(t, "doc-1", first["record_id"])
	assert.Equal(t, 0.0, first["position"])
	assert.Equal(t, "the quick brown fox", first["text"])

	status, body = do(t, http.MethodGet, srv.URL+"/api/v1/search?q=brown&limit=50")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["results"].([]any), 3, "limit is capped at maxResults")

	status, body = do(t, http.MethodGet, srv.URL+"/api/v1/index/stats")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["fitted"])
	assert.Equal(t, "rebuild", body["source"])
}

func TestSearch_BadRequests(t *testing.T) {
	srv := newServer(t, newExecutor(), nil)
	for _, path := range []string{
		"/api/v1/search",
		"/api/v1/search?q=fox&limit=0",
		"/api/v1/search?q=fox&limit=abc",
		"/api/v1/explain?position=0",
		"/api/v1/explain?q=fox&position=x",
	} {
		status, body := do(t, http.MethodGet, srv.URL+path)
		assert.Equal(t, http.StatusBadRequest, status, path)
		assert.NotEmpty(t, body["error"], path)
	}
}

func TestExplain(t *testing.T) {
	exec := newExecutor()
	_, err := exec.Rebuild(context.Background())
	require.NoError(t, err)
	srv := newServer(t, exec, nil)

	status, body := do(t, http.MethodGet, srv.URL+"/api/v1/explain?q=brown+brown&position=2")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "doc-3", body["record_id"])
	terms := body["terms"].([]any)
	require.Len(t, terms, 1)
	term := terms[0].(map[string]any)
	assert.Equal(t, "brown", term["term"])
	assert.Equal(t, 2.0, term["query_freq"])
	assert.Equal(t, 2.0, term["term_freq"])

	status, _ = do(t, http.MethodGet, srv.URL+"/api/v1/explain?q=fox&position=9")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSearch_UsesCache(t *testing.T) {
	exec := newExecutor()
	_, err := exec.Rebuild(context.Background())
	require.NoError(t, err)
	backend := &memBackend{data: map[string]string{}}
	qc := cache.New(backend, config.RedisConfig{}, nil)
	srv := newServer(t, exec, qc)

	for i := 0; i < 3; i++ {
		status, _ := do(t, http.MethodGet, srv.URL+"/api/v1/search?q=lazy+dog")
		require.Equal(t, http.StatusOK, status)
	}
	hits, misses := qc.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
	assert.Len(t, backend.data, 1)

	status, body := do(t, http.MethodGet, srv.URL+"/api/v1/cache/stats")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "66.7%", body["hit_rate"])

	status, _ = do(t, http.MethodPost, srv.URL+"/api/v1/cache/invalidate")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, backend.data)
}

func TestCacheEndpoints_Disabled(t *testing.T) {
	srv := newServer(t, newExecutor(), nil)
	status, body := do(t, http.MethodGet, srv.URL+"/api/v1/cache/stats")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "disabled", body["status"])

	status, _ = do(t, http.MethodPost, srv.URL+"/api/v1/cache/invalidate")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestRebuild_EmptyCorpus(t *testing.T) {
	exec := executor.New(executor.Options{Source: records.NewMemorySource(nil)})
	srv := newServer(t, exec, nil)
	status, body := do(t, http.MethodPost, srv.URL+"/api/v1/index/rebuild")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.True(t, strings.Contains(body["error"].(string), "empty corpus"))
}

func TestRoutes_MethodMismatch(t *testing.T) {
	srv := newServer(t, newExecutor(), nil)
	resp, err := http.Get(srv.URL + "/api/v1/index/rebuild")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

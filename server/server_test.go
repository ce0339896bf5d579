package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/jobs"
	"github.com/hupe1980/vecforge/metrics"
	"github.com/hupe1980/vecforge/server"
)

// stubJobs records submissions in a memory store without running them.
type stubJobs struct {
	mu        sync.Mutex
	store     *jobs.MemoryStore
	submitErr error
}

func newStubJobs() *stubJobs { return &stubJobs{store: jobs.NewMemoryStore()} }

func (s *stubJobs) Submit(ctx context.Context, req jobs.Request) (*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	j := jobs.New(req)
	return j, s.store.Create(ctx, j)
}

func (s *stubJobs) Get(ctx context.Context, id string) (*jobs.Job, error) { return s.store.Get(ctx, id) }

func (s *stubJobs) List(ctx context.Context) ([]*jobs.Job, error) { return s.store.List(ctx) }

func newTestServer(t *testing.T, svc server.Jobs, optFns ...func(c *server.Config)) *server.Server {
	t.Helper()
	cfg := server.Config{ListenAddr: "127.0.0.1:0", Gatherer: prometheus.NewRegistry()}
	for _, fn := range optFns {
		fn(&cfg)
	}
	srv, err := server.New(cfg, svc)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *server.Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	var decoded map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/") && w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

const validBody = `{"bucketName":"vectors","objectLocation":"data/sift.bin","numberOfVectors":1000,"dimensions":128}`

func TestNewValidates(t *testing.T) {
	_, err := server.New(server.Config{}, newStubJobs())
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	assert.Contains(t, err.Error(), "listen address is required")

	_, err = server.New(server.Config{ListenAddr: ":0"}, nil)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, newStubJobs())
	w, body := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestHello(t *testing.T) {
	srv := newTestServer(t, newStubJobs())
	w, body := do(t, srv, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["message"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestCreateIndexAndGetJob(t *testing.T) {
	stub := newStubJobs()
	srv := newTestServer(t, stub)

	w, body := do(t, srv, http.MethodPost, "/create_index", validBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "submitted", body["status"])
	id, _ := body["job_id"].(string)
	require.NotEmpty(t, id)

	w, body = do(t, srv, http.MethodGet, "/job/"+id, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "submitted", body["status"])
	assert.Nil(t, body["result"])
	assert.Nil(t, body["error"])

	j, err := stub.Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, j.Transition(jobs.StatusRunning))
	require.NoError(t, j.Transition(jobs.StatusFailed))
	j.Error = "object not found"
	require.NoError(t, stub.store.Update(context.Background(), j))

	_, body = do(t, srv, http.MethodGet, "/job/"+id, "")
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "object not found", body["error"])
}

func TestCreateIndexInvalid(t *testing.T) {
	srv := newTestServer(t, newStubJobs())
	for _, body := range []string{
		"not json",
		`{"bucketName":"vectors"}`,
		`{"bucketName":"vectors","objectLocation":"a.bin","numberOfVectors":-1,"dimensions":4}`,
		`{"bucketName":"vectors","objectLocation":"a.bin","numberOfVectors":"ten","dimensions":4}`,
	} {
		w, decoded := do(t, srv, http.MethodPost, "/create_index", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
		assert.Equal(t, "Invalid request", decoded["error"], "body %q", body)
	}
}

func TestCreateIndexServiceUnavailable(t *testing.T) {
	stub := newStubJobs()
	stub.submitErr = errs.InvalidState("service.submit", "service is shut down")
	srv := newTestServer(t, stub)

	w, _ := do(t, srv, http.MethodPost, "/create_index", validBody)
	assert.Equal(t, http.StatusConflict, w.Code)

	stub.submitErr = errors.New("disk full")
	w, _ = do(t, srv, http.MethodPost, "/create_index", validBody)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetJobNotFound(t *testing.T) {
	srv := newTestServer(t, newStubJobs())
	w, body := do(t, srv, http.MethodGet, "/job/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, body["detail"], "does-not-exist")
}

func TestListJobs(t *testing.T) {
	srv := newTestServer(t, newStubJobs())
	for i := 0; i < 3; i++ {
		w, _ := do(t, srv, http.MethodPost, "/create_index", validBody)
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w, body := do(t, srv, http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, w.Code)
	list, ok := body["jobs"].([]any)
	require.True(t, ok, w.Body.String())
	assert.Len(t, list, 3)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewPrometheusCollector(reg)
	require.NoError(t, err)
	collector.RecordJob("completed", 2*time.Second)

	srv := newTestServer(t, newStubJobs(), func(c *server.Config) { c.Gatherer = reg })
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "vecforge_jobs_total")
}

func TestOpenAPISpec(t *testing.T) {
	srv := newTestServer(t, newStubJobs())
	w, body := do(t, srv, http.MethodGet, "/openapi.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	paths, ok := body["paths"].(map[string]any)
	require.True(t, ok)
	for _, p := range []string{"/health", "/create_index", "/job/{id}", "/jobs"} {
		assert.Contains(t, paths, p)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, newStubJobs(), func(c *server.Config) { c.CORSOrigins = []string{"http://example.com"} })
	req := httptest.NewRequest(http.MethodOptions, "/jobs", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "http://example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStartAndShutdown(t *testing.T) {
	srv := newTestServer(t, newStubJobs())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

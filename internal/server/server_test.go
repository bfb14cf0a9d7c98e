package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/vcompress/internal/config"
	"github.com/mantonx/vcompress/internal/database"
	vcerrors "github.com/mantonx/vcompress/internal/errors"
	"github.com/mantonx/vcompress/internal/jobs"
	"github.com/mantonx/vcompress/internal/server/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeJobs is an in-memory JobService.
type fakeJobs struct {
	mu        sync.Mutex
	jobs      map[string]*database.Job
	submitted []jobs.SubmitRequest
	listOpts  jobs.ListOptions
	submitErr error
	events    chan jobs.Event
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]*database.Job)}
}

func (f *fakeJobs) Submit(ctx context.Context, req jobs.SubmitRequest) (*database.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	job := &database.Job{ID: "job-1", Status: database.JobStatusPending, Source: req.Source, InputPath: req.Input}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) Get(ctx context.Context, id string) (*database.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, vcerrors.NotFoundError("get job", vcerrors.ErrJobNotFound).WithJob(id)
	}
	return job, nil
}

func (f *fakeJobs) List(ctx context.Context, opts jobs.ListOptions) ([]*database.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listOpts = opts
	var out []*database.Job
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (f *fakeJobs) Stats(ctx context.Context) (map[database.JobStatus]int64, error) {
	return map[database.JobStatus]int64{database.JobStatusCompleted: 3}, nil
}

func (f *fakeJobs) Cancel(ctx context.Context, id string) error {
	job, err := f.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return vcerrors.ValidationError("cancel job", vcerrors.ErrInvalidTransition).WithJob(id)
	}
	return nil
}

func (f *fakeJobs) Subscribe(ctx context.Context, id string) (<-chan jobs.Event, func(), error) {
	if _, err := f.Get(ctx, id); err != nil {
		return nil, nil, err
	}
	return f.events, func() {}, nil
}

type pingFunc func(ctx context.Context) error

func (p pingFunc) PingContext(ctx context.Context) error { return p(ctx) }

func newTestServer(svc *fakeJobs, db pingFunc) *Server {
	var pinger handlers.Pinger
	if db != nil {
		pinger = db
	}
	return New(config.ServerConfig{Host: "127.0.0.1", Port: 0}, svc, pinger, hclog.NewNullLogger())
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestCreateJob(t *testing.T) {
	svc := newFakeJobs()
	s := newTestServer(svc, nil)

	w := doRequest(t, s, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"input":      "/videos/clip.mov",
		"video_size": "960x540",
		"frame_rate": 24,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var job database.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, "job-1", job.ID)

	require.Len(t, svc.submitted, 1)
	assert.Equal(t, "960x540", svc.submitted[0].VideoSize)
	assert.Equal(t, 24.0, svc.submitted[0].FrameRate)
	assert.Equal(t, database.JobSourceAPI, svc.submitted[0].Source)
}

func TestCreateJob_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      interface{}
		submitErr error
		status    int
		code      string
	}{
		{
			name:   "missing input",
			body:   map[string]interface{}{"video_size": "720p"},
			status: http.StatusBadRequest,
			code:   "validation",
		},
		{
			name:      "rejected by the service",
			body:      map[string]interface{}{"input": "/nope.mov"},
			submitErr: vcerrors.ValidationError("submit job", vcerrors.ErrInvalidInput),
			status:    http.StatusBadRequest,
			code:      "validation",
		},
		{
			name:      "queue full",
			body:      map[string]interface{}{"input": "/a.mov"},
			submitErr: vcerrors.ResourceError("submit job", vcerrors.ErrQueueFull),
			status:    http.StatusServiceUnavailable,
			code:      "resource",
		},
		{
			name:      "storage failure",
			body:      map[string]interface{}{"input": "/a.mov"},
			submitErr: vcerrors.StorageError("create job", errors.New("disk I/O error")),
			status:    http.StatusInternalServerError,
			code:      "storage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeJobs()
			svc.submitErr = tt.submitErr
			s := newTestServer(svc, nil)

			w := doRequest(t, s, http.MethodPost, "/api/v1/jobs", tt.body)
			assert.Equal(t, tt.status, w.Code)

			var resp struct {
				Success bool `json:"success"`
				Error   struct {
					Code      string `json:"code"`
					Retryable bool   `json:"retryable"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.status == http.StatusServiceUnavailable, resp.Error.Retryable)
		})
	}
}

func TestListJobs(t *testing.T) {
	svc := newFakeJobs()
	svc.jobs["a"] = &database.Job{ID: "a", Status: database.JobStatusCompleted}
	s := newTestServer(svc, nil)

	w := doRequest(t, s, http.MethodGet, "/api/v1/jobs?status=completed&limit=10000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, database.JobStatusCompleted, svc.listOpts.Status)
	assert.Equal(t, 500, svc.listOpts.Limit)

	var resp struct {
		Jobs  []database.Job `json:"jobs"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	w = doRequest(t, s, http.MethodGet, "/api/v1/jobs?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAndCancelJob(t *testing.T) {
	svc := newFakeJobs()
	svc.jobs["run"] = &database.Job{ID: "run", Status: database.JobStatusRunning}
	svc.jobs["done"] = &database.Job{ID: "done", Status: database.JobStatusCompleted}
	s := newTestServer(svc, nil)

	assert.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/api/v1/jobs/run", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, s, http.MethodGet, "/api/v1/jobs/missing", nil).Code)

	assert.Equal(t, http.StatusAccepted, doRequest(t, s, http.MethodDelete, "/api/v1/jobs/run", nil).Code)
	assert.Equal(t, http.StatusConflict, doRequest(t, s, http.MethodDelete, "/api/v1/jobs/done", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, s, http.MethodDelete, "/api/v1/jobs/missing", nil).Code)
}

func TestStats(t *testing.T) {
	s := newTestServer(newFakeJobs(), nil)

	w := doRequest(t, s, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"completed":3`)
}

func TestHealthAndMetrics(t *testing.T) {
	healthy := newTestServer(newFakeJobs(), func(context.Context) error { return nil })
	w := doRequest(t, healthy, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	broken := newTestServer(newFakeJobs(), func(context.Context) error { return errors.New("database is locked") })
	w = doRequest(t, broken, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// Drive one request through the metrics middleware first.
	doRequest(t, healthy, http.MethodGet, "/api/v1/jobs/missing", nil)
	w = doRequest(t, healthy, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `vcompress_http_requests_total{method="GET",path="/api/v1/jobs/:id",status="404"}`)
}

func TestStreamJob(t *testing.T) {
	svc := newFakeJobs()
	svc.jobs["j"] = &database.Job{ID: "j", Status: database.JobStatusRunning}
	svc.events = make(chan jobs.Event, 4)
	svc.events <- jobs.Event{JobID: "j", Status: database.JobStatusRunning, Progress: 0.5}
	svc.events <- jobs.Event{JobID: "j", Status: database.JobStatusCompleted, Progress: 1, ResultPath: "/out/j.mp4"}
	close(svc.events)

	ts := httptest.NewServer(newTestServer(svc, nil).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/jobs/j/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var got []jobs.Event
	for {
		var ev jobs.Event
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		got = append(got, ev)
	}

	require.Len(t, got, 2)
	assert.Equal(t, 0.5, got[0].Progress)
	assert.Equal(t, database.JobStatusCompleted, got[1].Status)
	assert.Equal(t, "/out/j.mp4", got[1].ResultPath)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/jobs/missing/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServe_Shutdown(t *testing.T) {
	s := newTestServer(newFakeJobs(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

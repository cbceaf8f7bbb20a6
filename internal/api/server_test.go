package api_test

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"ipotracker/internal/adapters/ziparchive"
	"ipotracker/internal/api"
	"ipotracker/internal/core/domain"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	err      error
	jobID    string
	entities []domain.Entity
}

func (d *fakeDispatcher) Dispatch(_ context.Context, jobID string, entities []domain.Entity) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(entities) == 0 {
		return domain.ErrInvalidInput
	}
	d.jobID = jobID
	d.entities = entities
	return d.err
}

type fakeFetcher struct {
	raw []byte
	err error
}

func (f fakeFetcher) Fetch(context.Context, string) ([]byte, error) {
	return f.raw, f.err
}

type fakeSession struct {
	mu      sync.Mutex
	err     error
	started []domain.Entity
	snap    domain.Snapshot
	updates []domain.Snapshot
	resets  int
}

func (s *fakeSession) Start(_ context.Context, entities []domain.Entity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.started = entities
	return "apply_1", nil
}

func (s *fakeSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.snap = domain.Snapshot{State: domain.StateIdle}
}

func (s *fakeSession) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *fakeSession) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, len(s.updates))
	for _, u := range s.updates {
		ch <- u
	}
	return ch, func() {}
}

func zipOf(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newRouter(d *fakeDispatcher, f fakeFetcher, s *fakeSession) http.Handler {
	return api.NewServer(d, f, ziparchive.Opener{}, s, "test").Router()
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()
	rec := serve(newRouter(&fakeDispatcher{}, fakeFetcher{}, &fakeSession{}), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","service":"ipotracker","version":"test"}`, rec.Body.String())
}

func TestTriggerWorkflow(t *testing.T) {
	t.Parallel()

	type given struct {
		body string
		err  error
	}
	type then struct {
		status int
		body   string
	}
	cases := []struct {
		scenario string
		given    given
		then     then
	}{
		{
			"ok",
			given{body: `{"apply_id":"apply_1","csv_data":[{"name":"Alice","pin":"1"}]}`},
			then{http.StatusOK, `{"success":true,"message":"Workflow triggered successfully","apply_id":"apply_1"}`},
		},
		{
			"missing apply id",
			given{body: `{"csv_data":[]}`},
			then{http.StatusBadRequest, `{"error":"Missing required fields: apply_id, csv_data"}`},
		},
		{
			"missing csv data",
			given{body: `{"apply_id":"apply_1"}`},
			then{http.StatusBadRequest, `{"error":"Missing required fields: apply_id, csv_data"}`},
		},
		{
			"csv data not an array",
			given{body: `{"apply_id":"apply_1","csv_data":{"name":"Alice"}}`},
			then{http.StatusBadRequest, `{"error":"csv_data must be an array of objects"}`},
		},
		{
			"csv data rows not objects",
			given{body: `{"apply_id":"apply_1","csv_data":["Alice"]}`},
			then{http.StatusBadRequest, `{"error":"csv_data must be an array of objects"}`},
		},
		{
			"not configured",
			given{body: `{"apply_id":"apply_1","csv_data":[{"name":"A"}]}`, err: errors.Join(domain.ErrConfiguration, errors.New("GITHUB_TOKEN is not set"))},
			then{http.StatusServiceUnavailable, `{"error":"GitHub environment variables not configured","details":"configuration error\nGITHUB_TOKEN is not set","status":"ENV_NOT_SET"}`},
		},
		{
			"rejected",
			given{body: `{"apply_id":"apply_1","csv_data":[{"name":"A"}]}`, err: &domain.RemoteError{Op: "dispatch", StatusCode: 404, Body: `{"message":"Not Found"}`}},
			then{http.StatusNotFound, `{"error":"Failed to trigger workflow","details":"{\"message\":\"Not Found\"}"}`},
		},
		{
			"unreachable",
			given{body: `{"apply_id":"apply_1","csv_data":[{"name":"A"}]}`, err: &domain.TransportError{Op: "dispatch", Err: errors.New("dial tcp: refused")}},
			then{http.StatusBadGateway, `{"error":"dispatch: dial tcp: refused"}`},
		},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			d := &fakeDispatcher{err: tc.given.err}
			rec := serve(newRouter(d, fakeFetcher{}, &fakeSession{}), http.MethodPost, "/api/trigger-workflow", tc.given.body)
			require.Equal(t, tc.then.status, rec.Code)
			require.JSONEq(t, tc.then.body, rec.Body.String())
		})
	}

	d := &fakeDispatcher{}
	serve(newRouter(d, fakeFetcher{}, &fakeSession{}), http.MethodPost, "/api/trigger-workflow",
		`{"apply_id":"apply_9","csv_data":[{"username":"1","name":"Alice","units":10}]}`)
	require.Equal(t, "apply_9", d.jobID)
	require.Len(t, d.entities, 1)
	require.Equal(t, []string{"username", "name", "units"}, d.entities[0].Keys())
}

func TestFetchLogs(t *testing.T) {
	t.Parallel()

	type then struct {
		status int
		body   string
	}
	cases := []struct {
		scenario string
		query    string
		given    func(t *testing.T) fakeFetcher
		then     then
	}{
		{
			"missing id", "",
			func(*testing.T) fakeFetcher { return fakeFetcher{} },
			then{http.StatusBadRequest, `{"error":"Missing apply_id parameter"}`},
		},
		{
			"log found", "?apply_id=apply_1",
			func(t *testing.T) fakeFetcher {
				return fakeFetcher{raw: zipOf(t, "logs/ipo-application.log", "line 1\nline 2")}
			},
			then{http.StatusOK, `{"logs":"line 1\nline 2","apply_id":"apply_1"}`},
		},
		{
			"log missing", "?apply_id=apply_1",
			func(t *testing.T) fakeFetcher { return fakeFetcher{raw: zipOf(t, "other.txt", "x")} },
			then{http.StatusOK, `{"logs":"[Artifact found but log file not found. Files in artifact: other.txt]","apply_id":"apply_1"}`},
		},
		{
			"corrupt", "?apply_id=apply_1",
			func(*testing.T) fakeFetcher { return fakeFetcher{raw: []byte("PK\x03\x04corrupted")} },
			then{http.StatusAccepted, `{"logs":"[Artifact downloaded but could not be extracted. Workflow may still be running.]","apply_id":"apply_1"}`},
		},
		{
			"not ready", "?apply_id=apply_1",
			func(*testing.T) fakeFetcher { return fakeFetcher{err: domain.ErrNotReady} },
			then{http.StatusNotFound, `{"error":"Logs not available yet"}`},
		},
		{
			"not configured", "?apply_id=apply_1",
			func(*testing.T) fakeFetcher { return fakeFetcher{err: domain.ErrConfiguration} },
			then{http.StatusInternalServerError, `{"error":"GitHub environment variables not configured","details":"configuration error"}`},
		},
		{
			"index failed", "?apply_id=apply_1",
			func(*testing.T) fakeFetcher {
				return fakeFetcher{err: &domain.RemoteError{Op: "list artifacts", StatusCode: http.StatusUnauthorized}}
			},
			then{http.StatusUnauthorized, `{"error":"Failed to list artifacts","status":401}`},
		},
		{
			"download failed", "?apply_id=apply_1",
			func(*testing.T) fakeFetcher {
				return fakeFetcher{err: &domain.RemoteError{Op: "download", StatusCode: http.StatusGone}}
			},
			then{http.StatusGone, `{"error":"Failed to download artifact","status":410}`},
		},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			h := newRouter(&fakeDispatcher{}, tc.given(t), &fakeSession{})
			rec := serve(h, http.MethodGet, "/api/fetch-logs"+tc.query, "")
			require.Equal(t, tc.then.status, rec.Code)
			require.JSONEq(t, tc.then.body, rec.Body.String())
		})
	}
}

func TestSession(t *testing.T) {
	t.Parallel()

	s := &fakeSession{snap: domain.Snapshot{JobID: "apply_1", State: domain.StatePolling, Attempts: 2, StatusHint: 404, Message: "Logs not available yet"}}
	h := newRouter(&fakeDispatcher{}, fakeFetcher{}, s)

	rec := serve(h, http.MethodPost, "/api/session", `{"accounts":[{"name":"Alice"},{"name":"Bob"}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"job_id":"apply_1"}`, rec.Body.String())
	require.Len(t, s.started, 2)
	require.Equal(t, "Bob", s.started[1].Name())

	rec = serve(h, http.MethodPost, "/api/session", `{"accounts":"Alice"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, "polling", snap["state"])
	require.EqualValues(t, 2, snap["attempts"])
	require.NotContains(t, snap, "Err")

	rec = serve(h, http.MethodDelete, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, s.resets)
	require.Contains(t, rec.Body.String(), `"state":"idle"`)

	cases := []struct {
		scenario string
		given    error
		then     int
	}{
		{"active", domain.ErrJobActive, http.StatusConflict},
		{"empty", domain.ErrInvalidInput, http.StatusBadRequest},
		{"closed", errors.New("orchestrator is closed"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			h := newRouter(&fakeDispatcher{}, fakeFetcher{}, &fakeSession{err: tc.given})
			rec := serve(h, http.MethodPost, "/api/session", `{"accounts":[]}`)
			require.Equal(t, tc.then, rec.Code)
		})
	}
}

func TestSessionEvents(t *testing.T) {
	t.Parallel()

	s := &fakeSession{updates: []domain.Snapshot{
		{JobID: "apply_1", State: domain.StatePolling, Attempts: 1},
	}}
	srv := httptest.NewServer(newRouter(&fakeDispatcher{}, fakeFetcher{}, s))
	t.Cleanup(srv.Close)

	// a non terminal stream stays open until the client leaves
	ctx, cancel := context.WithCancel(t.Context())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/session/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "text/event-stream", mediaType)

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event:snapshot\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, `"state":"polling"`)
	cancel()
	_ = resp.Body.Close()

	// a terminal snapshot ends the stream
	done := &fakeSession{updates: []domain.Snapshot{
		{JobID: "apply_1", State: domain.StatePolling},
		{JobID: "apply_1", State: domain.StateCompleted, OverallStatus: domain.StatusSuccess},
	}}
	rec := serve(newRouter(&fakeDispatcher{}, fakeFetcher{}, done), http.MethodGet, "/api/session/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Equal(t, 2, strings.Count(body, "event:snapshot"))
	require.Contains(t, body, `"state":"completed"`)
}

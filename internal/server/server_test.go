package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/batch"
	"github.com/xkilldash9x/inbox-sweeper/internal/config"
)

type fakeRunner struct {
	mu       sync.Mutex
	userID   string
	emailIDs []string
	result   schemas.BatchResult
	err      error
}

func (f *fakeRunner) RunEmailBatch(_ context.Context, userID string, emailIDs []string, reporter schemas.ProgressReporter) (schemas.BatchResult, error) {
	f.mu.Lock()
	f.userID, f.emailIDs = userID, emailIDs
	f.mu.Unlock()
	reporter.ReportProgress(50)
	return f.result, f.err
}

func newTestServer(t *testing.T, runner EmailBatchRunner) (*Server, *batch.JobManager) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	jobs := batch.NewJobManager(time.Hour, 8, logger)
	jobs.Start(context.Background())
	return New(config.NewDefaultConfig().Server(), runner, jobs, logger), jobs
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestUnsubscribeQueuesJobAndReportsStatus(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &fakeRunner{result: schemas.NewBatchResult([]schemas.ItemOutcome{
		{EmailID: "e1", UnsubscribeOutcome: schemas.UnsubscribeOutcome{Success: true}},
	})}
	srv, jobs := newTestServer(t, runner)
	defer jobs.Stop()
	h := srv.Handler()

	rec, body := do(t, h, http.MethodPost, "/unsubscribe", `{"emailIds":["e1"],"userId":"u1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, MsgStarted, body["message"])
	jobID, _ := body["jobId"].(string)
	require.NotEmpty(t, jobID)

	var status map[string]interface{}
	require.Eventually(t, func() bool {
		_, status = do(t, h, http.MethodGet, "/unsubscribe/status/"+jobID, "")
		return status["status"] == string(batch.JobCompleted)
	}, 2*time.Second, 10*time.Millisecond)

	assert.EqualValues(t, 100, status["progress"])
	result, ok := status["result"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, result["total"])
	assert.EqualValues(t, 1, result["successful"])

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, "u1", runner.userID)
	assert.Equal(t, []string{"e1"}, runner.emailIDs)
}

func TestStatusOfFailedJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv, jobs := newTestServer(t, &fakeRunner{err: errors.New("failed to launch browser: no chrome")})
	defer jobs.Stop()
	h := srv.Handler()

	_, body := do(t, h, http.MethodPost, "/unsubscribe", `{"emailIds":["e1","e2"],"userId":"u1"}`)
	jobID := body["jobId"].(string)

	var status map[string]interface{}
	require.Eventually(t, func() bool {
		_, status = do(t, h, http.MethodGet, "/unsubscribe/status/"+jobID, "")
		return status["status"] == string(batch.JobFailed)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, status["error"], "no chrome")
	assert.Nil(t, status["result"])
}

func TestStatusNotFound(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv, jobs := newTestServer(t, &fakeRunner{})
	defer jobs.Stop()
	rec, body := do(t, srv.Handler(), http.MethodGet, "/unsubscribe/status/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["status"])
	assert.Equal(t, "Job not found", body["message"])
}

func TestUnsubscribeRejectsBadRequests(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv, jobs := newTestServer(t, &fakeRunner{})
	defer jobs.Stop()
	h := srv.Handler()

	for _, payload := range []string{`not json`, `{"userId":"u1"}`, `{"emailIds":["e1"]}`, `{"emailIds":[],"userId":"u1"}`} {
		rec, body := do(t, h, http.MethodPost, "/unsubscribe", payload)
		assert.Equal(t, http.StatusBadRequest, rec.Code, payload)
		assert.Equal(t, false, body["success"], payload)
	}
}

func TestUnsubscribeWhenQueueStopped(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv, jobs := newTestServer(t, &fakeRunner{})
	jobs.Stop()

	rec, body := do(t, srv.Handler(), http.MethodPost, "/unsubscribe", `{"emailIds":["e1"],"userId":"u1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, batch.ErrManagerStopped.Error(), body["message"])
}

func TestServeShutsDownOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv, jobs := newTestServer(t, &fakeRunner{})
	defer jobs.Stop()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

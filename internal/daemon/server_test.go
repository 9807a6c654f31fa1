package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/Raydrick/docship/internal/config"
	"github.com/Raydrick/docship/internal/history"
	"github.com/Raydrick/docship/internal/metrics"
)

func testDaemon(t *testing.T, secret string) *Daemon {
	t.Helper()
	store, err := history.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry := prom.NewRegistry()
	d := &Daemon{
		cfg: &config.Config{
			Matrix: []config.MatrixEntry{{Version: "3.6"}},
			Deploy: config.DeployConfig{ReleaseBranch: "master"},
			Daemon: &config.DaemonConfig{
				Listen:        ":0",
				WebhookSecret: secret,
				RepoURL:       "https://example.invalid/repo.git",
			},
		},
		store:    store,
		recorder: metrics.NewPrometheusRecorder(registry),
		registry: registry,
	}
	// Jobs stay queued: no workers are started in handler tests.
	d.queue = NewRunQueue(4, 1, d, d.recorder)
	d.server = NewServer(d, ":0")
	return d
}

func postWebhook(t *testing.T, d *Daemon, secret string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(data))
	if secret != "" {
		req.Header.Set(webhookSecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	d.server.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookEnqueuesJob(t *testing.T) {
	d := testDaemon(t, "")

	rec := postWebhook(t, d, "", webhookPayload{Branch: "master", Commit: "abc123"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["job_id"])
	require.Equal(t, "master", resp["branch"])
	require.Equal(t, 1, d.queue.Length())
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	d := testDaemon(t, "s3cret")

	rec := postWebhook(t, d, "wrong", webhookPayload{Branch: "master"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, 0, d.queue.Length())

	rec = postWebhook(t, d, "s3cret", webhookPayload{Branch: "master"})
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestWebhookAcceptsFullRef(t *testing.T) {
	d := testDaemon(t, "")

	rec := postWebhook(t, d, "", webhookPayload{Ref: "refs/heads/master", Commit: "abc"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "master", resp["branch"])
}

func TestWebhookRequiresBranch(t *testing.T) {
	d := testDaemon(t, "")
	rec := postWebhook(t, d, "", webhookPayload{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookQueueFull(t *testing.T) {
	d := testDaemon(t, "")
	for i := 0; i < 4; i++ {
		rec := postWebhook(t, d, "", webhookPayload{Branch: "master"})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := postWebhook(t, d, "", webhookPayload{Branch: "master"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	d := testDaemon(t, "")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	d.server.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestStatusEndpoint(t *testing.T) {
	d := testDaemon(t, "")
	_ = d.queue.Enqueue(&Job{ID: "queued-1", Branch: "master"})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	d.server.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, float64(1), resp["queue_length"])
}

func TestMetricsEndpoint(t *testing.T) {
	d := testDaemon(t, "")
	d.recorder.SetQueueLength(7)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	d.server.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "docship_queue_length 7")
}

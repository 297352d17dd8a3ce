package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/genforge/forgeq"
	"github.com/genforge/forgeq/httpapi"
	"github.com/genforge/forgeq/metrics"
	"github.com/genforge/forgeq/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *forgeq.Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st := store.NewRedisFromClient(client)
	cfg := forgeq.DefaultConfig()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	collector := metrics.New()
	estimator := forgeq.NewEstimator(st, cfg, collector, log)
	manager := forgeq.NewManager(st, cfg, estimator, collector, log)
	admission := forgeq.NewAdmission(st, cfg, collector, log)

	server := httptest.NewServer(httpapi.New(admission, manager, estimator, collector.Handler(), log))
	t.Cleanup(server.Close)
	return server, manager
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func submitBody(userID, tier string) map[string]any {
	return map[string]any{
		"user_id": userID,
		"tier":    tier,
		"payload": map[string]any{"name": "demo"},
	}
}

func TestSubmitAccepted(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/projects", submitBody("user-1", "pro"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decodeBody(t, resp)
	require.NotEmpty(t, body["job_id"])
	require.Equal(t, "queued", body["status"])
	require.EqualValues(t, 1, body["queue_position"])
	require.NotEmpty(t, body["estimated_start"])
	require.Greater(t, body["estimated_wait_minutes"].(float64), 0.0)
}

func TestSubmitValidation(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/projects", submitBody("user-1", "platinum"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "INVALID_TIER", decodeBody(t, resp)["code"])

	resp = postJSON(t, server.URL+"/projects", map[string]any{"tier": "pro"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err := http.Post(server.URL+"/projects", "application/json", bytes.NewReader([]byte("{broken")))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmitQuotaExceeded(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/projects", submitBody("user-free", "free"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, server.URL+"/projects", submitBody("user-free", "free"))
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "QUOTA_EXCEEDED", decodeBody(t, resp)["code"])
}

func TestStatusLifecycle(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/projects", submitBody("user-1", "pro"))
	jobID := decodeBody(t, resp)["job_id"].(string)

	statusResp, err := http.Get(server.URL + "/projects/" + jobID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, statusResp.StatusCode)
	view := decodeBody(t, statusResp)
	require.Equal(t, "queued", view["status"])
	require.EqualValues(t, 1, view["queue_position"])

	unknown, err := http.Get(server.URL + "/projects/9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, unknown.StatusCode)
	unknown.Body.Close()

	malformed, err := http.Get(server.URL + "/projects/not-a-uuid")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, malformed.StatusCode)
	malformed.Body.Close()
}

func TestCancelFlow(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/projects", submitBody("user-1", "pro"))
	jobID := decodeBody(t, resp)["job_id"].(string)

	cancelResp, err := http.Post(server.URL+"/projects/"+jobID+"/cancel", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, cancelResp.StatusCode)
	require.Equal(t, "cancelled", decodeBody(t, cancelResp)["status"])

	again, err := http.Post(server.URL+"/projects/"+jobID+"/cancel", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, again.StatusCode)
	require.Equal(t, "ILLEGAL_TRANSITION", decodeBody(t, again)["code"])
}

func TestQueueStatsAndHealth(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/projects", submitBody("user-1", "pro"))
	resp.Body.Close()

	statsResp, err := http.Get(server.URL + "/queue/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, statsResp.StatusCode)
	stats := decodeBody(t, statsResp)
	require.EqualValues(t, 1, stats["pending"])
	require.EqualValues(t, 0, stats["processing"])
	require.Contains(t, stats, "completed_today")
	require.Contains(t, stats, "failed_today")
	require.Contains(t, stats, "avg_processing_time_minutes")
	require.Contains(t, stats, "estimated_wait_minutes")

	healthResp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, healthResp.StatusCode)
	health := decodeBody(t, healthResp)
	require.Equal(t, "healthy", health["status"])
	require.NotEmpty(t, health["timestamp"])
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "forgeq_jobs_submitted_total")
}

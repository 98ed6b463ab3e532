package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchforge/opsync/internal/daemon/registry"
	"github.com/patchforge/opsync/pkg/status"
	"github.com/patchforge/opsync/testutil"
)

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	testutil.WithTempHome(t)
	reg := registry.New(testutil.TempSnapshotStore(t))
	return New(reg), reg
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestOperationLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/operations", map[string]string{
		"id": "fx_1", "labelName": "Firefox Install", "appName": "Firefox",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/operations/fx_1/progress", map[string]interface{}{
		"status": "downloading", "phaseName": "Downloading", "overallProgress": 0.4,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/operations/fx_1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var op status.Operation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &op))
	assert.Equal(t, status.StatusDownloading, op.Status)
	assert.InDelta(t, 0.4, op.OverallProgress, 1e-9)

	w = doJSON(t, h, http.MethodPost, "/api/operations/fx_1/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st status.SystemState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.NotNil(t, st.Operations["fx_1"])
	assert.Equal(t, status.StatusCompleted, st.Operations["fx_1"].Status)
}

func TestTransferEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/api/operations", map[string]string{
		"id": "fx_1", "labelName": "Firefox Install", "appName": "Firefox",
	})

	w := doJSON(t, h, http.MethodPost, "/api/operations/fx_1/transfer", map[string]interface{}{
		"direction": "download", "doneBytes": 1024, "totalBytes": 4096,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/operations/fx_1", nil)
	var op status.Operation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &op))
	assert.InDelta(t, 0.25, op.Phase.Progress, 1e-9)

	w = doJSON(t, h, http.MethodPost, "/api/operations/fx_1/transfer", map[string]interface{}{
		"direction": "sideways", "doneBytes": 1, "totalBytes": 2,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	// Unknown operation
	w := doJSON(t, h, http.MethodGet, "/api/operations/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "OPERATION_NOT_FOUND")

	// Terminal operation rejects updates
	doJSON(t, h, http.MethodPost, "/api/operations", map[string]string{
		"id": "fx_1", "labelName": "Firefox Install", "appName": "Firefox",
	})
	doJSON(t, h, http.MethodPost, "/api/operations/fx_1/complete", nil)
	w = doJSON(t, h, http.MethodPost, "/api/operations/fx_1/progress", map[string]interface{}{
		"status": "downloading", "phaseName": "Downloading", "overallProgress": 0.1,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "OPERATION_TERMINAL")

	// Malformed body
	req := httptest.NewRequest(http.MethodPost, "/api/operations", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFailAndRemove(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/api/operations", map[string]string{
		"id": "fx_1", "labelName": "Firefox Install", "appName": "Firefox",
	})

	w := doJSON(t, h, http.MethodPost, "/api/operations/fx_1/fail", map[string]string{
		"errorMessage": "checksum mismatch",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/operations/fx_1", nil)
	var op status.Operation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &op))
	assert.Equal(t, status.StatusError, op.Status)
	assert.Equal(t, "checksum mismatch", op.ErrorMessage)

	w = doJSON(t, h, http.MethodDelete, "/api/operations/fx_1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/operations/fx_1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestShutdownReturnsCleanly(t *testing.T) {
	srv, _ := newTestServer(t)

	dir, err := os.MkdirTemp("", "opsync")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	socketPath := filepath.Join(dir, "opsyncd.sock")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(socketPath) }()

	testutil.Eventually(t, 2*time.Second, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, "daemon socket did not come up")

	require.NoError(t, srv.Shutdown(context.Background()))

	select {
	case err := <-errCh:
		assert.NoError(t, err, "graceful shutdown must not surface as a serve failure")
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not return after Shutdown")
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	srv, reg := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server loop a moment to register the subscription.
	time.Sleep(50 * time.Millisecond)

	reg.Start("fx_1", "Firefox Install", "Firefox")
	require.NoError(t, reg.Update("fx_1", status.StatusDownloading, "Downloading", "", nil, 0.4))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ev status.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "fx_1", ev.OperationID)
	assert.Equal(t, status.ActionUpdate, ev.Action)

	require.NoError(t, conn.ReadJSON(&ev))
	require.NotNil(t, ev.Status)
	assert.Equal(t, status.StatusDownloading, *ev.Status)
	require.NotNil(t, ev.OverallProgress)
	assert.InDelta(t, 0.4, *ev.OverallProgress, 1e-9)

	require.NoError(t, reg.Remove("fx_1"))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, status.ActionRemoved, ev.Action)
}

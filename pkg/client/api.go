// Package client is the consumer side of opsync: an HTTP API client for the
// daemon socket, and a Facade that merges broadcast events, snapshot file
// watching, and polling into one reactive cached view of all operations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/patchforge/opsync/errors"
	"github.com/patchforge/opsync/pkg/status"
	"github.com/patchforge/opsync/version"
)

// baseURL is the dummy host used for unix socket HTTP requests.
// The actual connection goes through the socket, not this URL.
const baseURL = "http://unix"

// API calls the daemon's HTTP API over its unix socket.
type API struct {
	httpClient *http.Client
	socketPath string
}

// NewAPI creates an API client for the daemon socket.
func NewAPI(socketPath string) *API {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		DisableKeepAlives: false,
		MaxIdleConns:      10,
		IdleConnTimeout:   90 * time.Second,
	}

	return &API{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   10 * time.Second,
		},
		socketPath: socketPath,
	}
}

// IsRunning returns true if the daemon is available and responding.
func (a *API) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Version returns the daemon's build information.
func (a *API) Version(ctx context.Context) (*version.Info, error) {
	var info version.Info
	if err := a.get(ctx, "/api/version", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// State returns the daemon's full in-memory system state.
func (a *API) State(ctx context.Context) (*status.SystemState, error) {
	var st status.SystemState
	if err := a.get(ctx, "/api/state", &st); err != nil {
		return nil, err
	}
	if st.Operations == nil {
		st.Operations = make(map[string]*status.Operation)
	}
	return &st, nil
}

// Operations returns all tracked operations.
func (a *API) Operations(ctx context.Context) ([]*status.Operation, error) {
	var resp struct {
		Operations []*status.Operation `json:"operations"`
	}
	if err := a.get(ctx, "/api/operations", &resp); err != nil {
		return nil, err
	}
	return resp.Operations, nil
}

// Operation returns a single operation by id.
func (a *API) Operation(ctx context.Context, id string) (*status.Operation, error) {
	var op status.Operation
	if err := a.get(ctx, "/api/operations/"+id, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// StartOperation registers a new operation with the daemon.
func (a *API) StartOperation(ctx context.Context, id, labelName, appName string) error {
	return a.post(ctx, "/api/operations", map[string]string{
		"id":        id,
		"labelName": labelName,
		"appName":   appName,
	})
}

// ReportProgress transitions an operation's status and phase.
func (a *API) ReportProgress(ctx context.Context, id string, st status.Status, phaseName, phaseDetail string, phaseProgress *float64, overallProgress float64) error {
	body := map[string]interface{}{
		"status":          st,
		"phaseName":       phaseName,
		"overallProgress": overallProgress,
	}
	if phaseDetail != "" {
		body["phaseDetail"] = phaseDetail
	}
	if phaseProgress != nil {
		body["phaseProgress"] = *phaseProgress
	}
	return a.post(ctx, "/api/operations/"+id+"/progress", body)
}

// ReportTransfer reports byte-counted download or upload progress.
func (a *API) ReportTransfer(ctx context.Context, id, direction string, doneBytes, totalBytes int64) error {
	return a.post(ctx, "/api/operations/"+id+"/transfer", map[string]interface{}{
		"direction":  direction,
		"doneBytes":  doneBytes,
		"totalBytes": totalBytes,
	})
}

// CompleteOperation marks an operation finished.
func (a *API) CompleteOperation(ctx context.Context, id string) error {
	return a.post(ctx, "/api/operations/"+id+"/complete", nil)
}

// FailOperation marks an operation failed with a message.
func (a *API) FailOperation(ctx context.Context, id, errorMessage string) error {
	return a.post(ctx, "/api/operations/"+id+"/fail", map[string]string{
		"errorMessage": errorMessage,
	})
}

// CancelOperation marks an operation cancelled.
func (a *API) CancelOperation(ctx context.Context, id string) error {
	return a.post(ctx, "/api/operations/"+id+"/cancel", nil)
}

// RemoveOperation deletes an operation from the daemon.
func (a *API) RemoveOperation(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, baseURL+"/api/operations/"+id, nil)
	if err != nil {
		return err
	}
	return a.do(req, nil)
}

// Close cleans up idle connections.
func (a *API) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}

func (a *API) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
	if err != nil {
		return err
	}
	return a.do(req, out)
}

func (a *API) post(ctx context.Context, path string, body interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, nil)
}

func (a *API) do(req *http.Request, out interface{}) error {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return errors.DaemonNotRunning(a.socketPath).WithDetail("cause", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error *errors.OpsyncError `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr == nil && payload.Error != nil {
			return payload.Error
		}
		return errors.New(errors.ErrCodeInternal, fmt.Sprintf("daemon returned status %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to decode daemon response")
	}
	return nil
}

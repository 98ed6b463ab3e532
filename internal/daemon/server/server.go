// Package server exposes the registry over the daemon's unix socket: a JSON
// API for producers and consumers, plus a WebSocket broadcast stream.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/patchforge/opsync/errors"
	"github.com/patchforge/opsync/internal/daemon/registry"
	"github.com/patchforge/opsync/logging"
	"github.com/patchforge/opsync/pkg/status"
	"github.com/patchforge/opsync/version"
)

// Server manages the daemon's HTTP server over a unix socket.
type Server struct {
	logger    *logrus.Entry
	registry  *registry.Registry
	router    *gin.Engine
	server    *http.Server
	startedAt time.Time
}

// New creates a Server serving the given registry.
func New(reg *registry.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		logger:    logging.NewLogger("server"),
		registry:  reg,
		router:    gin.New(),
		startedAt: time.Now().UTC(),
	}
	s.routes()
	s.server = &http.Server{
		Handler: h2c.NewHandler(s.router, &http2.Server{}),
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(gin.Recovery())

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	{
		api.GET("/version", s.handleVersion)
		api.GET("/state", s.handleState)
		api.GET("/operations", s.handleListOperations)
		api.GET("/operations/:id", s.handleGetOperation)
		api.DELETE("/operations/:id", s.handleRemoveOperation)

		api.POST("/operations", s.handleStartOperation)
		api.POST("/operations/:id/progress", s.handleProgress)
		api.POST("/operations/:id/transfer", s.handleTransfer)
		api.POST("/operations/:id/complete", s.handleComplete)
		api.POST("/operations/:id/fail", s.handleFail)
		api.POST("/operations/:id/cancel", s.handleCancel)
	}
}

// Handler returns the root HTTP handler, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return errors.Wrap(err, errors.ErrCodeSocketListen, "failed to remove stale socket")
		}
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return errors.Wrap(err, errors.ErrCodeSocketListen, "failed to create socket directory")
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSocketListen, fmt.Sprintf("failed to listen on %s", socketPath))
	}

	// The daemon runs privileged; unprivileged consumers must still be able
	// to dial the socket.
	if err := os.Chmod(socketPath, 0666); err != nil {
		_ = listener.Close()
		return errors.Wrap(err, errors.ErrCodeSocketListen, "failed to set socket permissions")
	}

	s.logger.WithField("socket", socketPath).Info("Daemon listening")
	if err := s.server.Serve(listener); err != http.ErrServerClosed {
		return err
	}
	// A Shutdown-triggered stop is a clean exit, not a failure.
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetInfo())
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.Snapshot())
}

func (s *Server) handleListOperations(c *gin.Context) {
	st := s.registry.Snapshot()
	ops := make([]*status.Operation, 0, len(st.Operations))
	for _, op := range st.Operations {
		ops = append(ops, op)
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops, "lastUpdate": st.LastUpdate})
}

func (s *Server) handleGetOperation(c *gin.Context) {
	op, err := s.registry.Operation(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, op)
}

func (s *Server) handleRemoveOperation(c *gin.Context) {
	if err := s.registry.Remove(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": c.Param("id")})
}

type startRequest struct {
	ID        string `json:"id" binding:"required"`
	LabelName string `json:"labelName" binding:"required"`
	AppName   string `json:"appName" binding:"required"`
}

func (s *Server) handleStartOperation(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.InvalidInput(err.Error()))
		return
	}
	s.registry.Start(req.ID, req.LabelName, req.AppName)
	c.JSON(http.StatusCreated, gin.H{"id": req.ID})
}

type progressRequest struct {
	Status          status.Status `json:"status" binding:"required"`
	PhaseName       string        `json:"phaseName" binding:"required"`
	PhaseDetail     string        `json:"phaseDetail"`
	PhaseProgress   *float64      `json:"phaseProgress"`
	OverallProgress float64       `json:"overallProgress"`
}

func (s *Server) handleProgress(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.InvalidInput(err.Error()))
		return
	}
	if !req.Status.Valid() {
		s.writeError(c, errors.InvalidInput(fmt.Sprintf("unknown status %q", req.Status)))
		return
	}
	err := s.registry.Update(c.Param("id"), req.Status, req.PhaseName, req.PhaseDetail, req.PhaseProgress, req.OverallProgress)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": c.Param("id")})
}

type transferRequest struct {
	Direction  string `json:"direction" binding:"required"`
	DoneBytes  int64  `json:"doneBytes"`
	TotalBytes int64  `json:"totalBytes"`
}

func (s *Server) handleTransfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.InvalidInput(err.Error()))
		return
	}

	id := c.Param("id")
	var err error
	switch req.Direction {
	case "download":
		err = s.registry.UpdateDownloadProgress(id, req.DoneBytes, req.TotalBytes)
	case "upload":
		err = s.registry.UpdateUploadProgress(id, req.DoneBytes, req.TotalBytes)
	default:
		err = errors.InvalidInput(fmt.Sprintf("unknown transfer direction %q", req.Direction))
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": id})
}

func (s *Server) handleComplete(c *gin.Context) {
	if err := s.registry.Complete(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": c.Param("id")})
}

type failRequest struct {
	ErrorMessage string `json:"errorMessage" binding:"required"`
}

func (s *Server) handleFail(c *gin.Context) {
	var req failRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.InvalidInput(err.Error()))
		return
	}
	if err := s.registry.Fail(c.Param("id"), req.ErrorMessage); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"failed": c.Param("id")})
}

func (s *Server) handleCancel(c *gin.Context) {
	if err := s.registry.Cancel(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": c.Param("id")})
}

// writeError maps coded errors onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	code := errors.GetCode(err)

	httpStatus := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeOperationNotFound:
		httpStatus = http.StatusNotFound
	case errors.ErrCodeOperationTerminal, errors.ErrCodeInvalidTransition:
		httpStatus = http.StatusConflict
	case errors.ErrCodeInvalidInput:
		httpStatus = http.StatusBadRequest
	}

	if opErr, ok := err.(*errors.OpsyncError); ok {
		c.JSON(httpStatus, gin.H{"error": opErr})
		return
	}
	c.JSON(httpStatus, gin.H{"error": gin.H{"code": errors.ErrCodeInternal, "message": err.Error()}})
}

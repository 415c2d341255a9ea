package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/eidolon-project/eidolon/internal/auditsink"
	"github.com/eidolon-project/eidolon/internal/planner"
	"github.com/eidolon-project/eidolon/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// startScanHandler starts a scan using the caller's stored ScanConfig (or
// the platform default if none has been saved). It is a 409 if the user
// already has a running scan.
func (s *Server) startScanHandler(c *gin.Context) {
	uid := userID(c)

	cfg, ok, err := s.store.Get(uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !ok {
		cfg = types.DefaultScanConfig()
	}

	plan, err := planner.Plan(cfg)
	if err != nil {
		writeValidationError(c, err)
		return
	}

	taskID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	task, err := s.registry.Start(uid, taskID, cancel, time.Now())
	if err != nil {
		cancel()
		if errors.Is(err, types.ErrScanAlreadyRunning) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	s.wg.Add(1)
	go s.runScan(ctx, task, plan, cfg)

	c.JSON(http.StatusOK, StartScanResponse{TaskID: taskID, Status: string(types.StatusRunning)})
}

// runScan drives the orchestrator to completion and records the outcome to
// the audit sink. It owns no HTTP state; callers run it detached.
func (s *Server) runScan(ctx context.Context, task *types.Task, plan *types.ScanPlan, cfg types.ScanConfig) {
	defer s.wg.Done()
	s.orchestrator.Run(ctx, task, plan)

	snap := task.Snapshot()
	rec := auditsink.Record{
		TaskID:        snap.TaskID,
		UserID:        snap.UserID,
		Status:        string(snap.Status),
		EventsTotal:   snap.TotalEvents,
		FailureReason: snap.FailureReason,
		ConfigSummary: cfg.Summary(),
		FinishedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	auditCtx, auditCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer auditCancel()
	if err := s.audit.Record(auditCtx, rec); err != nil {
		s.logger.Warnw("audit record failed", "task_id", snap.TaskID, "error", err)
	}
}

// cancelScanHandler requests cancellation of an in-flight task.
func (s *Server) cancelScanHandler(c *gin.Context) {
	var req CancelScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "task_id is required"})
		return
	}

	err := s.registry.Cancel(req.TaskID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, CancelScanResponse{Status: "cancelled"})
	case errors.Is(err, types.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, CancelScanResponse{Status: "not_found"})
	case errors.Is(err, types.ErrAlreadyTerminal):
		c.JSON(http.StatusOK, CancelScanResponse{Status: "already_terminal"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

// scanHistoryHandler lists the caller's recent terminal scans still held
// within the registry's retention window.
func (s *Server) scanHistoryHandler(c *gin.Context) {
	snaps := s.registry.HistoryForUser(userID(c), 20)
	entries := make([]HistoryEntry, 0, len(snaps))
	for _, snap := range snaps {
		entries = append(entries, snapshotToHistoryEntry(snap))
	}
	c.JSON(http.StatusOK, HistoryResponse{Scans: entries})
}

// getConfigHandler returns the caller's stored ScanConfig, or the platform
// default if none has been saved yet.
func (s *Server) getConfigHandler(c *gin.Context) {
	cfg, ok, err := s.store.Get(userID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !ok {
		cfg = types.DefaultScanConfig()
	}
	c.JSON(http.StatusOK, cfg)
}

// putConfigHandler validates and stores a new ScanConfig for the caller.
// Validation reuses the Address Planner so a config that could never scan
// (overlapping targets, bad ports) is rejected before it is saved.
func (s *Server) putConfigHandler(c *gin.Context) {
	var cfg types.ScanConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if _, err := planner.Plan(cfg); err != nil {
		writeValidationError(c, err)
		return
	}

	if err := s.store.Put(userID(c), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, cfg)
}

func writeValidationError(c *gin.Context, err error) {
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: verr.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

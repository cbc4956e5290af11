// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSwarm/pkg/validation"
	"github.com/AleutianAI/AleutianSwarm/services/engine/journal"
	"github.com/AleutianAI/AleutianSwarm/services/engine/telemetry"
)

// defaultHistoryLimit caps history responses when no limit is given.
const defaultHistoryLimit = 50

// HealthResponse is the response for GET /healthz.
type HealthResponse struct {
	// Status is "healthy".
	Status string `json:"status"`

	// Version is the monitor API version.
	Version string `json:"version"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`
}

// RunsResponse is the response for GET /v1/engine/runs.
type RunsResponse struct {
	Runs  []journal.RunRecord `json:"runs"`
	Count int                 `json:"count"`
}

// StepsResponse is the response for GET /v1/engine/steps.
type StepsResponse struct {
	RunID string               `json:"run_id"`
	Steps []journal.StepRecord `json:"steps"`
	Count int                  `json:"count"`
}

// runsRequest is the query params for GET /v1/engine/runs.
type runsRequest struct {
	// Limit is the maximum number of results. Default: 50.
	Limit int `form:"limit"`
}

// stepsRequest is the query params for GET /v1/engine/steps.
type stepsRequest struct {
	// Run is the run to list steps for. Default: the engine's current
	// run.
	Run string `form:"run"`

	// Limit is the maximum number of results. Default: 50.
	Limit int `form:"limit"`
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// handleStatus handles GET /v1/engine/status. The snapshot is safe to
// take mid-run.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

// handleMetrics handles GET /metrics. It answers 503 when the
// Prometheus exporter is not enabled.
func (s *Server) handleMetrics(c *gin.Context) {
	h := telemetry.MetricsHandler()
	if h == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "prometheus exporter is not enabled",
			Code:  "METRICS_DISABLED",
		})
		return
	}
	h.ServeHTTP(c.Writer, c.Request)
}

// handleRuns handles GET /v1/engine/runs.
//
// Response:
//
//	200 OK: RunsResponse
//	400 Bad Request: Invalid query parameters
//	503 Service Unavailable: Journal disabled
func (s *Server) handleRuns(c *gin.Context) {
	logger := s.logger.With(slog.String("request_id", getOrCreateRequestID(c)))

	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "journal is disabled",
			Code:  "JOURNAL_DISABLED",
		})
		return
	}

	var req runsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid query parameters",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultHistoryLimit
	}

	runs, err := s.journal.Runs(c.Request.Context(), req.Limit)
	if err != nil {
		logger.Error("run history query failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "QUERY_FAILED",
		})
		return
	}
	if runs == nil {
		runs = []journal.RunRecord{}
	}

	c.JSON(http.StatusOK, RunsResponse{Runs: runs, Count: len(runs)})
}

// handleRun handles GET /v1/engine/runs/:id.
//
// Response:
//
//	200 OK: journal.RunRecord
//	400 Bad Request: Invalid run id
//	404 Not Found: No such run
//	503 Service Unavailable: Journal disabled
func (s *Server) handleRun(c *gin.Context) {
	logger := s.logger.With(slog.String("request_id", getOrCreateRequestID(c)))

	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "journal is disabled",
			Code:  "JOURNAL_DISABLED",
		})
		return
	}

	runID := c.Param("id")
	if err := validation.ValidateRunID(runID); err != nil {
		logger.Warn("rejected run id", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_RUN_ID",
		})
		return
	}

	rec, err := s.journal.GetRun(c.Request.Context(), runID)
	if errors.Is(err, journal.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "RUN_NOT_FOUND",
		})
		return
	}
	if err != nil {
		logger.Error("run query failed", slog.String("run_id", runID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "QUERY_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// handleSteps handles GET /v1/engine/steps.
//
// Response:
//
//	200 OK: StepsResponse
//	400 Bad Request: Invalid query parameters or run id
//	503 Service Unavailable: Journal disabled
func (s *Server) handleSteps(c *gin.Context) {
	logger := s.logger.With(slog.String("request_id", getOrCreateRequestID(c)))

	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "journal is disabled",
			Code:  "JOURNAL_DISABLED",
		})
		return
	}

	var req stepsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid query parameters",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if req.Run == "" {
		req.Run = s.engine.RunID()
	}
	if err := validation.ValidateRunID(req.Run); err != nil {
		logger.Warn("rejected run id", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_RUN_ID",
		})
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultHistoryLimit
	}

	steps, err := s.journal.Steps(c.Request.Context(), req.Run, req.Limit)
	if err != nil {
		logger.Error("step history query failed", slog.String("run_id", req.Run), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "QUERY_FAILED",
		})
		return
	}
	if steps == nil {
		steps = []journal.StepRecord{}
	}

	c.JSON(http.StatusOK, StepsResponse{RunID: req.Run, Steps: steps, Count: len(steps)})
}

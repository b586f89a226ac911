package api

import (
	"context"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/opus-nx/swarm/pkg/lifecycle"
	"github.com/opus-nx/swarm/pkg/models"
	"github.com/opus-nx/swarm/pkg/notify"
)

// defaultExperimentLimit caps GET /api/swarm/:session_id/experiments when
// no limit query parameter is given.
const defaultExperimentLimit = 20

// ExperimentsResponse is the body of GET /api/swarm/:session_id/experiments.
type ExperimentsResponse struct {
	Experiments []*models.HypothesisExperiment `json:"experiments"`
	Lifecycle   lifecycle.Snapshot             `json:"lifecycle"`
}

// CompareRequest is the body of POST /api/swarm/experiments/:id/compare.
type CompareRequest struct {
	PerformedBy    string `json:"performedBy,omitempty"`
	RerunIfMissing *bool  `json:"rerunIfMissing,omitempty"`
	ForceRerun     bool   `json:"forceRerun,omitempty"`
	NodeID         string `json:"nodeId,omitempty"`
	Correction     string `json:"correction,omitempty"`
}

// CompareResponse reports whether a comparison is ready or has been started.
type CompareResponse struct {
	Status           string         `json:"status"`
	Mode             string         `json:"mode"`
	ComparisonResult map[string]any `json:"comparison_result,omitempty"`
}

// RetainRequest is the body of POST /api/swarm/experiments/:id/retain.
type RetainRequest struct {
	Decision    string `json:"decision"`
	PerformedBy string `json:"performedBy,omitempty"`
}

// RetainResponse returns the experiment after the retention decision.
type RetainResponse struct {
	Experiment *models.HypothesisExperiment `json:"experiment"`
}

// listExperimentsHandler handles GET /api/swarm/:session_id/experiments.
func (s *Server) listExperimentsHandler(c *echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	var status models.ExperimentStatus
	if raw := c.QueryParam("status"); raw != "" {
		status = models.ExperimentStatus(raw)
		if !status.IsValid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status: "+raw)
		}
	}

	limit := defaultExperimentLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	return c.JSON(http.StatusOK, &ExperimentsResponse{
		Experiments: s.lifecycle.ListSession(c.Request().Context(), sessionID, status, limit),
		Lifecycle:   s.lifecycle.Metrics(),
	})
}

// compareExperimentHandler handles POST /api/swarm/experiments/:id/compare.
func (s *Server) compareExperimentHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "experiment id is required")
	}

	var req CompareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rerunIfMissing := true
	if req.RerunIfMissing != nil {
		rerunIfMissing = *req.RerunIfMissing
	}

	if !rerunIfMissing {
		exp, err := s.lifecycle.Get(c.Request().Context(), id)
		if err != nil {
			return mapServiceError(err)
		}
		if len(exp.ComparisonResult) == 0 {
			return echo.NewHTTPError(http.StatusConflict,
				"no comparison result available and rerun is disabled")
		}
	}

	outcome, err := s.lifecycle.Compare(c.Request().Context(), id, lifecycle.CompareOptions{
		ForceRerun: req.ForceRerun,
		NodeID:     req.NodeID,
		Correction: req.Correction,
	})
	if err != nil {
		return mapServiceError(err)
	}

	status := "compare_started"
	if outcome.Status == "existing" {
		status = "comparison_ready"
	}
	return c.JSON(http.StatusOK, &CompareResponse{
		Status:           status,
		Mode:             outcome.Status,
		ComparisonResult: outcome.ComparisonResult,
	})
}

// retainExperimentHandler handles POST /api/swarm/experiments/:id/retain.
func (s *Server) retainExperimentHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "experiment id is required")
	}

	var req RetainRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	decision := models.RetentionDecision(req.Decision)
	if !decision.IsValid() {
		return echo.NewHTTPError(http.StatusBadRequest,
			"decision must be one of: retain, defer, archive")
	}

	exp, err := s.lifecycle.Retain(c.Request().Context(), id, decision, req.PerformedBy)
	if err != nil {
		return mapServiceError(err)
	}

	go s.notifier.NotifyRetention(context.WithoutCancel(c.Request().Context()), notify.RetentionInput{
		SessionID:    exp.SessionID,
		ExperimentID: exp.ID,
		Decision:     decision,
		PerformedBy:  req.PerformedBy,
	})

	return c.JSON(http.StatusOK, &RetainResponse{Experiment: exp})
}

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/opus-nx/swarm/pkg/events"
)

// maxQueryLength bounds the user query accepted by POST /api/swarm.
const maxQueryLength = 2000

// SwarmRequest is the body of POST /api/swarm.
type SwarmRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

// SwarmResponse acknowledges a started swarm run.
type SwarmResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// swarmHandler handles POST /api/swarm. The run itself is fire-and-forget:
// the response returns immediately and progress streams over the WebSocket.
func (s *Server) swarmHandler(c *echo.Context) error {
	var req SwarmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if len(req.Query) > maxQueryLength {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("query exceeds maximum length of %d characters", maxQueryLength))
	}
	if _, err := uuid.Parse(req.SessionID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id must be a valid UUID")
	}

	if !s.limiter.Allow(req.SessionID) {
		return echo.NewHTTPError(http.StatusTooManyRequests,
			fmt.Sprintf("Rate limit exceeded: max %d requests per %ds window",
				s.limiter.Limit(), int(s.limiter.Window().Seconds())))
	}

	runCtx := context.WithoutCancel(c.Request().Context())
	go func() {
		if _, err := s.runner.Run(runCtx, req.Query, req.SessionID); err != nil {
			s.logger.Error("swarm run failed",
				"session_id", req.SessionID, "error", err)
			s.bus.Publish(req.SessionID, events.NewSwarmError(req.SessionID, err.Error()))
		}
	}()

	return c.JSON(http.StatusOK, &SwarmResponse{
		Status:    "started",
		SessionID: req.SessionID,
	})
}

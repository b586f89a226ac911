package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/opus-nx/swarm/pkg/graph"
	"github.com/opus-nx/swarm/pkg/models"
)

// GraphResponse is the body of GET /api/graph/:session_id. Nodes holds the
// session's own nodes; Graph is the full export for edge rendering.
type GraphResponse struct {
	Nodes []*models.ReasoningNode `json:"nodes"`
	Graph *graph.Export           `json:"graph"`
}

// graphHandler handles GET /api/graph/:session_id.
func (s *Server) graphHandler(c *echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	return c.JSON(http.StatusOK, &GraphResponse{
		Nodes: s.graph.GetSessionNodes(sessionID),
		Graph: s.graph.ToJSON(),
	})
}

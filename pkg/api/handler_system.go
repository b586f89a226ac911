package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/opus-nx/swarm/pkg/lifecycle"
	"github.com/opus-nx/swarm/pkg/persist"
	"github.com/opus-nx/swarm/pkg/version"
)

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// CapabilitiesResponse is the body of GET /api/system/capabilities.
type CapabilitiesResponse struct {
	Supabase       persist.Capabilities `json:"supabase"`
	DegradedMode   bool                 `json:"degraded_mode"`
	DegradedReason string               `json:"degraded_reason,omitempty"`
	Lifecycle      lifecycle.Snapshot   `json:"lifecycle"`
}

// healthHandler handles GET /api/health. Unauthenticated and minimal:
// the service is healthy as long as it can answer.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  "ok",
		Version: version.Full(),
	})
}

// capabilitiesHandler handles GET /api/system/capabilities. Exposes the
// persistence capability snapshot so clients can surface degraded mode.
func (s *Server) capabilitiesHandler(c *echo.Context) error {
	snapshot := s.lifecycle.Metrics()
	return c.JSON(http.StatusOK, &CapabilitiesResponse{
		Supabase:       snapshot.Capabilities,
		DegradedMode:   snapshot.DegradedMode,
		DegradedReason: snapshot.Capabilities.DegradedReason,
		Lifecycle:      snapshot,
	})
}

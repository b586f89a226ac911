package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/opus-nx/swarm/pkg/lifecycle"
)

// mapServiceError maps lifecycle service errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *lifecycle.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, lifecycle.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "experiment not found")
	}
	if errors.Is(err, lifecycle.ErrConflict) {
		return echo.NewHTTPError(http.StatusConflict, "experiment is not in a comparable state")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opus-nx/swarm/pkg/lifecycle"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation error", lifecycle.NewValidationError("decision", "bad"), http.StatusBadRequest},
		{"not found", lifecycle.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", errors.Join(errors.New("ctx"), lifecycle.ErrNotFound), http.StatusNotFound},
		{"conflict", lifecycle.ErrConflict, http.StatusConflict},
		{"unknown", errors.New("kaboom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpErr := mapServiceError(tt.err)
			assert.Equal(t, tt.code, httpErr.Code)
		})
	}
}

package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/inkpress/internal/shared"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("posts: get: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.NewValidationError("title", "required"), http.StatusUnprocessableEntity},
		{shared.ErrSelfDeletion, http.StatusUnprocessableEntity},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrCSRFTokenMismatch, http.StatusForbidden},
		{shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), "%v", tt.err)
	}
}

func TestProblem(t *testing.T) {
	rr := httptest.NewRecorder()
	Problem(rr, http.StatusServiceUnavailable, "Queue Unavailable", "down")

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, ProblemDetail{Title: "Queue Unavailable", Status: http.StatusServiceUnavailable, Detail: "down"}, body)
}

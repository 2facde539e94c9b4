package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAppErrorKinds(t *testing.T) {
	cause := stderrors.New("boom")

	tests := []struct {
		name   string
		err    *AppError
		typ    ErrorType
		status int
	}{
		{"validation", NewValidationError("quantity must be positive"), ErrorTypeValidation, http.StatusBadRequest},
		{"not found", NewNotFoundError("title"), ErrorTypeNotFound, http.StatusNotFound},
		{"conflict", NewConflictError("invalid transition"), ErrorTypeConflict, http.StatusConflict},
		{"upstream", NewUpstreamError("ideas", cause), ErrorTypeUpstream, http.StatusBadGateway},
		{"safety", NewSafetyRejection("", cause), ErrorTypeSafety, http.StatusUnprocessableEntity},
		{"persistence", NewPersistenceError("put painting", cause), ErrorTypePersistence, http.StatusInternalServerError},
		{"unavailable", NewUnavailableError("image scheduler"), ErrorTypeUnavailable, http.StatusServiceUnavailable},
		{"rate limit", NewRateLimitError("slow down"), ErrorTypeRateLimit, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.err.Type)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.True(t, IsType(tt.err, tt.typ))
		})
	}
}

func TestWrapKeepsAppErrorType(t *testing.T) {
	err := Wrap(NewNotFoundError("painting"), "retry")

	assert.True(t, IsNotFound(err))
	assert.Equal(t, "retry: painting not found", GetAppError(err).Message)
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestWrapPlainErrorBecomesInternal(t *testing.T) {
	cause := stderrors.New("disk full")

	err := Wrap(cause, "save image")

	assert.True(t, IsType(err, ErrorTypeInternal))
	assert.ErrorIs(t, err, cause)
}

func TestErrorHandler_Handle(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)

	t.Run("app error keeps status and type", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/paintings/x/retry", nil)

		h.Handle(rec, req, NewConflictError("painting is not in failed state"))

		require.Equal(t, http.StatusConflict, rec.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.Equal(t, string(ErrorTypeConflict), body.Type)
		assert.Equal(t, "painting is not in failed state", body.Message)
	})

	t.Run("plain error is hidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/paintings/x", nil)

		h.Handle(rec, req, stderrors.New("connection reset"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "An internal error occurred", body.Message)
	})
}

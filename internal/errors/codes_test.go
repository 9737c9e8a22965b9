package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheError_HTTPStatus(t *testing.T) {
	tests := []struct {
		err    *CacheError
		status int
	}{
		{NotFound("user", "u1", 3), http.StatusNotFound},
		{UnsupportedKind("ghost"), http.StatusUnprocessableEntity},
		{InvalidArgument("bad input", nil), http.StatusBadRequest},
		{InvalidVersion(-1, "negative"), http.StatusBadRequest},
		{StorageFailed("down", nil), http.StatusServiceUnavailable},
		{ContractViolation("impossible"), http.StatusInternalServerError},
		{InternalError("boom", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.CodeString(), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
		})
	}
}

func TestCacheError_Unwrap(t *testing.T) {
	cause := stderrors.New("disk on fire")
	err := StorageFailed("read failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("user", "u1", 0)))
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", NotFound("user", "u1", 0))))
	assert.False(t, IsNotFound(StorageFailed("down", nil)))
	assert.False(t, IsNotFound(stderrors.New("plain")))
	assert.False(t, IsNotFound(nil))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeUnsupportedKind, GetCode(UnsupportedKind("ghost")))
	assert.Equal(t, ErrCodeInternal, GetCode(stderrors.New("plain")))
}

func TestAsCacheError_WrapsUnknown(t *testing.T) {
	ce := AsCacheError(stderrors.New("plain"))
	assert.Equal(t, ErrCodeInternal, ce.Code)

	original := NotFound("user", "u1", 0)
	assert.Same(t, original, AsCacheError(original))
}

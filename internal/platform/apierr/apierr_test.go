package apierr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Status(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, New(ValidationError, "bad field", nil).Status())
	require.Equal(t, http.StatusNotFound, New(NoSuchJob, "gone", nil).Status())
	require.Equal(t, http.StatusServiceUnavailable, New(Overloaded, "full", nil).Status())
	require.Equal(t, http.StatusInternalServerError, New(InternalError, "boom", nil).Status())
}

func TestWrap_PreservesExistingKind(t *testing.T) {
	inner := New(HashMismatch, "digest mismatch", nil)
	wrapped := Wrap(InternalError, inner)
	assert.Equal(t, HashMismatch, wrapped.Kind)
}

func TestWrap_PlainError(t *testing.T) {
	wrapped := Wrap(ConnectionError, errors.New("dial tcp: refused"))
	assert.Equal(t, ConnectionError, wrapped.Kind)
	assert.Equal(t, "dial tcp: refused", wrapped.Message)
}

func TestToResponse_IncludesData(t *testing.T) {
	err := New(PackageAlreadyExists, "foo@1.0 exists", map[string]any{"name": "foo", "version": "1.0"})
	resp := err.ToResponse()
	assert.Equal(t, "PackageAlreadyExists", resp["error"])
	assert.Equal(t, http.StatusConflict, resp["status_code"])
	assert.NotNil(t, resp["data"])
}

func TestAs_WrapsForeignError(t *testing.T) {
	ae := As(errors.New("whatever"))
	assert.Equal(t, InternalError, ae.Kind)
}

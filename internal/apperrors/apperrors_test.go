package apperrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	err := New(KindValidation, "eventType is required")
	assert.Equal(t, KindValidation, err.Kind)
	assert.Contains(t, err.Error(), "eventType is required")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(KindAdapterUnavailable, "chainA publish failed", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.ErrorIs(t, err, cause)
}

func TestWithDetails(t *testing.T) {
	err := New(KindValidation, "invalid field").WithDetails("entityId")
	assert.Contains(t, err.Error(), "entityId")
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindMissingGlobalID, http.StatusInternalServerError},
		{KindAllAdaptersFailed, http.StatusInternalServerError},
		{KindAdapterUnavailable, http.StatusInternalServerError},
		{KindAdapterRejected, http.StatusInternalServerError},
		{KindCacheUnavailable, http.StatusInternalServerError},
		{KindConsumerWebhookFailed, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range cases {
		err := New(tt.kind, "x")
		assert.Equal(t, tt.want, err.HTTPStatus(), "kind=%s", tt.kind)
	}
}

func TestAsExtractsAppError(t *testing.T) {
	var err error = New(KindValidation, "bad field")
	appErr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, appErr.Kind)

	_, ok = As(errors.New("plain error"))
	assert.False(t, ok)
}

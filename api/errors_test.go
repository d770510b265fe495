package api_test

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-netio/api"
)

func TestErrorFormatting(t *testing.T) {
	err := api.NewError(api.ErrCodeBindFailed, "bind udp socket").
		WithContext("address", "127.0.0.1:9").
		WithContext("kind", "udp_receiver").
		WithCause(syscall.EADDRINUSE)

	assert.Equal(t, "bind udp socket (address=127.0.0.1:9, kind=udp_receiver): address already in use", err.Error())
	assert.True(t, errors.Is(err, syscall.EADDRINUSE))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, api.ErrCodeOK, api.CodeOf(nil))
	assert.Equal(t, api.ErrCodeInternal, api.CodeOf(errors.New("boom")))

	wrapped := fmt.Errorf("outer: %w", api.NewError(api.ErrCodeResolveFailed, "lookup"))
	require.Equal(t, api.ErrCodeResolveFailed, api.CodeOf(wrapped))
	assert.Equal(t, "resolve_failed", api.CodeOf(wrapped).String())
	assert.Equal(t, "code(99)", api.ErrorCode(99).String())
}

package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeNotConnected, "session not established")
	assert.Equal(t, ErrCodeNotConnected, err.Code)
	assert.Equal(t, "session not established", err.Message)
	assert.Nil(t, err.Cause)
	assert.Equal(t, "[200] session not established", err.Error())
}

func TestNewf(t *testing.T) {
	err := Newf(ErrCodeDataUnavailable, "no data for %s", "600000.SH")
	assert.Equal(t, "[300] no data for 600000.SH", err.Error())
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeQueryFailed, "failed to execute query", cause)
	assert.Equal(t, "[302] failed to execute query: connection refused", err.Error())
	assert.Equal(t, cause, err.Unwrap())
}

func TestWrapf(t *testing.T) {
	cause := fmt.Errorf("timeout")
	err := Wrapf(ErrCodeOrderFailed, cause, "order %s failed", "abc")
	assert.Equal(t, ErrCodeOrderFailed, err.Code)
	assert.Equal(t, "order abc failed", err.Message)
	assert.Equal(t, cause, err.Unwrap())
}

func TestGetCode(t *testing.T) {
	err := New(ErrCodeInvalidOrderParameters, "quantity must be positive")
	assert.Equal(t, ErrCodeInvalidOrderParameters, GetCode(err))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, ErrCodeInvalidOrderParameters, GetCode(wrapped))

	plain := fmt.Errorf("plain error")
	assert.Equal(t, ErrCodeUnknown, GetCode(plain))
}

func TestHasCode(t *testing.T) {
	err := New(ErrCodeConnectionLost, "broker terminal went away")
	assert.True(t, HasCode(err, ErrCodeConnectionLost))
	assert.False(t, HasCode(err, ErrCodeNotConnected))
}

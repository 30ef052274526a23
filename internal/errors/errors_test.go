package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		code     string
		category Category
		severity Severity
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError},
		{ErrCodeCorruptIndex, CategoryIO, SeverityFatal},
		{ErrCodeIndexClosed, CategoryIndex, SeverityError},
		{ErrCodeIndexLocked, CategoryIndex, SeverityWarning},
		{ErrCodeInvalidInput, CategoryValidation, SeverityError},
		{ErrCodeUnknownOperation, CategoryInternal, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Contains(t, err.Error(), tt.code)
		})
	}
}

func TestIs_MatchesByCode(t *testing.T) {
	err := IndexClosed()
	assert.True(t, stderrors.Is(err, IndexClosed()))
	assert.False(t, stderrors.Is(err, IndexLocked("/x", nil)))
}

func TestHasCode_ThroughWrapping(t *testing.T) {
	inner := IndexLocked("/var/idx", nil)
	wrapped := fmt.Errorf("enqueue failed: %w", inner)

	assert.True(t, HasCode(wrapped, ErrCodeIndexLocked))
	assert.False(t, HasCode(wrapped, ErrCodeIndexClosed))
	assert.Equal(t, ErrCodeIndexLocked, GetCode(wrapped))
	assert.Equal(t, "", GetCode(stderrors.New("plain")))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("disk on fire")
	err := Wrap(ErrCodeCorruptIndex, cause)
	require.NotNil(t, err)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause.Error(), err.Message)

	assert.Nil(t, Wrap(ErrCodeCorruptIndex, nil))
}

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := fmt.Errorf("transfer: %w", NewValidationError("amount", "must be positive"))

	assert.True(t, IsValidationError(err))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "field 'amount'")
}

func TestStorageError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStorageError("begin", cause)

	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "begin")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("sender: %w", ErrAccountNotFound)))
	assert.True(t, IsNotFound(ErrDepositNotFound))
	assert.False(t, IsNotFound(ErrInsufficientFunds))
}

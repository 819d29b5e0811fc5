package errors

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrAccountSuspended        = errors.New("account is suspended")
	ErrReferrerNotFound        = errors.New("referrer not found")
	ErrReferrerCycle           = errors.New("referrer chain is invalid")
	ErrDuplicateContact        = errors.New("username, email or phone already registered")
	ErrAccountNumberTaken      = errors.New("account number already taken")
	ErrNilAccount              = errors.New("account is nil")
	ErrNilTransaction          = errors.New("transaction is nil")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrSelfTransfer            = errors.New("sender and receiver must differ")
	ErrDuplicateTxHash         = errors.New("deposit with this transaction hash already exists")
	ErrDepositNotFound         = errors.New("deposit request not found")
	ErrWithdrawalNotFound      = errors.New("withdrawal request not found")
	ErrPurchaseNotFound        = errors.New("purchase not found")
	ErrProductNotFound         = errors.New("product not found")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrAlreadyProcessed        = errors.New("request already processed")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrIdempotencyMismatch     = errors.New("idempotency key reused with a different request")
	ErrRequestInProgress       = errors.New("request with this idempotency key is in progress")
	ErrIdempotencyKeyNotFound  = errors.New("idempotency key not found")
	ErrStorageUnavailable      = errors.New("storage unavailable")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrInvalidInput            = errors.New("invalid input")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrInvalidInput) match any validation failure.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// StorageError marks a transient infrastructure failure. It matches
// ErrStorageUnavailable and unwraps to the driver error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage unavailable during '%s': %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrReferrerNotFound) ||
		errors.Is(err, ErrDepositNotFound) ||
		errors.Is(err, ErrWithdrawalNotFound) ||
		errors.Is(err, ErrPurchaseNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

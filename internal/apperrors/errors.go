package apperrors

import (
	"errors"
	"fmt"
)

// Errors returned by coordinators to callers
var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrBanned            = errors.New("account is banned")
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyUsed       = errors.New("balance key already used")
	ErrStoreFailure      = errors.New("store failure")
)

// Errors returned by repositories
var (
	ErrProfileNotFound = errors.New("profile not found")

	ErrWalletNotFound        = errors.New("wallet not found")
	ErrWalletExists          = errors.New("wallet already exists")
	ErrWalletVersionConflict = errors.New("wallet was modified concurrently")

	ErrListingNotFound = errors.New("listing not found")
	ErrListingSold     = errors.New("listing already has a completed order")

	ErrOrderNotFound = errors.New("order not found")

	ErrBalanceKeyNotFound = errors.New("balance key not found")
	ErrBalanceKeyExists   = errors.New("balance key code already exists")
)

// NotFoundError reports a missing resource, e.g. "listing" or "seller wallet"
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NotFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

// InvalidStateError reports a business rule violation detected before any mutation
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return "invalid state: " + e.Reason
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

func InvalidState(reason string) error {
	return &InvalidStateError{Reason: reason}
}

// StoreFailureError reports a failed store call.
// CompensationErr is set when undoing already applied steps failed as well: the data is left
// inconsistent and needs manual reconciliation.
type StoreFailureError struct {
	Step            string
	Err             error
	CompensationErr error
}

func (e *StoreFailureError) Error() string {
	msg := fmt.Sprintf("store failure at step %q: %v", e.Step, e.Err)
	if e.CompensationErr != nil {
		msg += fmt.Sprintf("; compensation failed: %v", e.CompensationErr)
	}
	return msg
}

func (e *StoreFailureError) Is(target error) bool {
	return target == ErrStoreFailure
}

func (e *StoreFailureError) Unwrap() []error {
	errs := []error{e.Err}
	if e.CompensationErr != nil {
		errs = append(errs, e.CompensationErr)
	}
	return errs
}

func StoreFailure(step string, err error) error {
	return &StoreFailureError{Step: step, Err: err}
}

// Compensated reports whether the failure left the data consistent
func (e *StoreFailureError) Compensated() bool {
	return e.CompensationErr == nil
}

// Package secerr defines the error taxonomy shared by the security core.
//
// Callers wrap these sentinels with fmt.Errorf("%w") and the HTTP layer
// maps them to generic client responses with errors.Is.
package secerr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation means the input matched a threat pattern or failed a format check
	ErrValidation = errors.New("invalid input")

	// ErrCrypto covers key mismatch, tag failure and malformed envelopes.
	// It never carries the underlying cause.
	ErrCrypto = errors.New("crypto operation failed")

	// ErrPolicy is a data policy violation such as deleting a record with dependents
	ErrPolicy = errors.New("policy violation")

	// ErrNotFound is returned for a missing incident or record
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is an incident status change the lifecycle does not allow
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrConflict signals a lost optimistic-concurrency race that exhausted its retries
	ErrConflict = errors.New("concurrent modification")
)

// Validation wraps ErrValidation with a field-level reason for internal logs
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Policy wraps ErrPolicy with a reason
func Policy(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPolicy, fmt.Sprintf(format, args...))
}

// CryptoError is the generic failure of a crypto operation. Only the operation
// name is kept so that nothing about keys, tags or plaintext escapes.
type CryptoError struct {
	Op string
}

func (e *CryptoError) Error() string {
	return "crypto: " + e.Op + " failed"
}

// Is lets errors.Is(err, ErrCrypto) match any CryptoError
func (e *CryptoError) Is(target error) bool {
	return target == ErrCrypto
}

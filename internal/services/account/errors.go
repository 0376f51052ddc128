// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package account

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthorized    = errors.New("invalid credentials")
	ErrConflict        = errors.New("email address already in use")
	ErrNotFound        = errors.New("account not found")
	ErrInvalidCode     = errors.New("invalid recovery code")
	ErrAlreadyVerified = errors.New("account already verified")
	ErrNoChange        = errors.New("nothing changed")
	ErrForbidden       = errors.New("forbidden")
	ErrNotify          = errors.New("notification failed")
)

// Forbidden reasons. All of them match ErrForbidden.
var (
	ErrInvalidSecret   = fmt.Errorf("%w: invalid token", ErrForbidden)
	ErrNotVerified     = fmt.Errorf("%w: email address not verified", ErrForbidden)
	ErrLicenseRequired = fmt.Errorf("%w: license agreement required", ErrForbidden)
)

// ValidationError reports rejected input. Key is the message ID shown to the user.
type ValidationError struct {
	Key string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Key + ": " + e.Err.Error()
	}
	return e.Key
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// MessageKey returns the message ID for err if it is a validation error.
func MessageKey(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Key, true
	}
	return "", false
}

func invalid(key string, err error) error {
	return &ValidationError{Key: key, Err: err}
}

func notifyFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrNotify, err)
}

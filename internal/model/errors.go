package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a notification id does not exist.
	ErrNotFound = errors.New("notification not found")
	// ErrIdentityNotFound is returned when an admin id cannot be resolved.
	ErrIdentityNotFound = errors.New("admin identity not found")
	// ErrDeliveryFailed is returned by a transport that cannot take a push.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// ValidationError reports a malformed notification request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid notification: %s %s", e.Field, e.Reason)
}

// FeedTransportError wraps a failure subscribing to or reading the change feed.
type FeedTransportError struct {
	Op  string
	Err error
}

func (e *FeedTransportError) Error() string {
	return fmt.Sprintf("change feed %s: %v", e.Op, e.Err)
}

func (e *FeedTransportError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

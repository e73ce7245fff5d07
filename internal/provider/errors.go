package provider

import (
	"errors"
	"fmt"
)

// Kind classifies a provider error. Transient errors (network, timeout,
// provider 5xx) are retried by the polling caller and never recorded as
// a terminal session state; terminal errors are explicit provider
// decisions (decline, expiry).
type Kind int

const (
	KindTransient Kind = iota + 1
	KindTerminal
)

// Error is a typed provider error carrying the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable provider error.
func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Terminal wraps err as a final provider decision.
func Terminal(op string, err error) error {
	return &Error{Kind: KindTerminal, Op: op, Err: err}
}

// IsTransient reports whether err is a retryable provider error.
func IsTransient(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindTransient
}

// IsTerminal reports whether err is a final provider decision.
func IsTerminal(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindTerminal
}

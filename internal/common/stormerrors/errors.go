// Package stormerrors contains error types and classification helpers shared
// across the pipeline. The classification functions decide whether an error
// from the store is worth retrying; everything transient is, and nothing
// transient may kill the worker loop.
package stormerrors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrInvalidConfiguration indicates a fatal startup problem, e.g. a missing
// connection string. It is never retried.
type ErrInvalidConfiguration struct {
	Name    string // name of the offending config field
	Message string
}

func (err *ErrInvalidConfiguration) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", err.Name, err.Message)
}

// ErrMaxRetriesExceeded is returned when a retryable operation has been
// retried as many times as the caller is willing to.
type ErrMaxRetriesExceeded struct {
	Message   string
	LastError error
}

func (err *ErrMaxRetriesExceeded) Error() string {
	return fmt.Sprintf("%s: %s", err.Message, err.LastError)
}

func (err *ErrMaxRetriesExceeded) Unwrap() error {
	return err.LastError
}

// IsNetworkError returns true if err is a connectivity problem rather than a
// logical failure.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsRetryablePostgresError returns true for postgres errors that are expected
// to resolve on their own: lost connections, serialization failures,
// deadlocks and resource exhaustion. Constraint violations and bad SQL are
// not retryable.
func IsRetryablePostgresError(err error) bool {
	if err == nil {
		return false
	}
	if IsNetworkError(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch {
	case pgerrcode.IsConnectionException(pgErr.Code):
		return true
	case pgerrcode.IsInsufficientResources(pgErr.Code):
		return true
	case pgerrcode.IsOperatorIntervention(pgErr.Code):
		return true
	case pgErr.Code == pgerrcode.SerializationFailure:
		return true
	case pgErr.Code == pgerrcode.DeadlockDetected:
		return true
	}
	return false
}

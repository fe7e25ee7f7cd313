package stormerrors

import (
	"context"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsNetworkError(t *testing.T) {
	assert.False(t, IsNetworkError(nil))
	assert.False(t, IsNetworkError(errors.New("some application error")))
	assert.True(t, IsNetworkError(context.DeadlineExceeded))
	assert.True(t, IsNetworkError(syscall.ECONNREFUSED))
	assert.True(t, IsNetworkError(&net.OpError{Op: "dial", Err: syscall.ECONNRESET}))
	assert.True(t, IsNetworkError(errors.Wrap(syscall.EPIPE, "writing batch")))
}

func TestIsRetryablePostgresError(t *testing.T) {
	assert.False(t, IsRetryablePostgresError(nil))
	assert.False(t, IsRetryablePostgresError(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.False(t, IsRetryablePostgresError(&pgconn.PgError{Code: pgerrcode.UndefinedTable}))
	assert.True(t, IsRetryablePostgresError(&pgconn.PgError{Code: pgerrcode.ConnectionFailure}))
	assert.True(t, IsRetryablePostgresError(&pgconn.PgError{Code: pgerrcode.SerializationFailure}))
	assert.True(t, IsRetryablePostgresError(&pgconn.PgError{Code: pgerrcode.DeadlockDetected}))
	assert.True(t, IsRetryablePostgresError(&pgconn.PgError{Code: pgerrcode.AdminShutdown}))
	assert.True(t, IsRetryablePostgresError(syscall.ECONNRESET))
}

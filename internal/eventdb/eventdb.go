// Package eventdb persists upload events in postgres. Inserts are
// idempotent on the log-assigned message id, so replayed and reclaimed
// entries collapse into the row written by their first successful delivery.
package eventdb

import (
	"context"
	"embed"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/bhumitschaudhry/ConnectStorm/internal/common/database"
	"github.com/bhumitschaudhry/ConnectStorm/internal/common/stormerrors"
)

//go:embed schema/*.sql
var schemaFs embed.FS

// EventRow is one file event as stored in the file_events table. MessageID
// is the log entry id that produced the row and carries the uniqueness
// guarantee together with EventTime.
type EventRow struct {
	MessageID  string
	EventTime  time.Time
	Operation  string
	Filename   string
	FileSize   int64
	MimeType   string
	StorageURL string
	UploaderID string
}

// Querier is the subset of pgxpool.Pool the store needs. Tests substitute
// a fake.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// EventDb wraps the postgres connection with a local LRU of message ids
// whose rows are already confirmed durable. The cache only short-circuits
// re-inserts; correctness always rests on the unique index.
type EventDb struct {
	db    Querier
	cache *simplelru.LRU
}

func New(db Querier, cacheSize int) (*EventDb, error) {
	if db == nil {
		return nil, errors.WithStack(&stormerrors.ErrInvalidConfiguration{
			Name:    "db",
			Message: "db must be non-nil",
		})
	}
	cache, err := simplelru.NewLRU(cacheSize, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &EventDb{db: db, cache: cache}, nil
}

// Migrate brings the file_events schema up to date.
func Migrate(ctx context.Context, db database.Executor) error {
	migrations, err := database.GetMigrations(schemaFs, "schema")
	if err != nil {
		return err
	}
	return database.UpdateDatabase(ctx, db, migrations)
}

// Check implements health.Checker.
func (e *EventDb) Check() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return e.db.Ping(ctx)
}

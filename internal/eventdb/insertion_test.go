package eventdb

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

func testRow(messageId string, filename string) EventRow {
	return EventRow{
		MessageID:  messageId,
		EventTime:  baseTime,
		Operation:  "UPLOAD",
		Filename:   filename,
		FileSize:   1024,
		MimeType:   "text/plain",
		StorageURL: "/tmp/storage/" + filename,
		UploaderID: "uploader-1",
	}
}

// fakeQuerier implements Querier in memory. Batch inserts go through a
// fakeTx; scalar inserts hit Exec directly with the message id as the first
// argument.
type fakeQuerier struct {
	beginErr       error
	copyErr        error
	failMessageIds map[string]bool

	beginCalls int
	execCalls  int
	copied     []string
	inserted   []string
	execedSql  []string
	truncated  bool
}

func (q *fakeQuerier) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	q.beginCalls++
	if q.beginErr != nil {
		return nil, q.beginErr
	}
	return &fakeTx{q: q}, nil
}

func (q *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.execCalls++
	q.execedSql = append(q.execedSql, sql)
	if strings.HasPrefix(sql, "TRUNCATE") {
		q.truncated = true
		return pgconn.CommandTag{}, nil
	}
	messageId := args[0].(string)
	if q.failMessageIds[messageId] {
		return pgconn.CommandTag{}, errors.New("value too long for type character varying")
	}
	q.inserted = append(q.inserted, messageId)
	return pgconn.CommandTag{}, nil
}

func (q *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}

func (q *fakeQuerier) Ping(ctx context.Context) error {
	return nil
}

type fakeTx struct {
	pgx.Tx
	q *fakeQuerier
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.q.execedSql = append(t.q.execedSql, sql)
	if strings.Contains(sql, "INSERT INTO file_events") {
		t.q.inserted = append(t.q.inserted, t.q.copied...)
	}
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	if t.q.copyErr != nil {
		return 0, t.q.copyErr
	}
	var n int64
	for rowSrc.Next() {
		values, err := rowSrc.Values()
		if err != nil {
			return n, err
		}
		t.q.copied = append(t.q.copied, values[0].(string))
		n++
	}
	return n, nil
}

func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

func newTestDb(t *testing.T, q *fakeQuerier) *EventDb {
	t.Helper()
	db, err := New(q, 128)
	require.NoError(t, err)
	return db
}

func TestInsertBatchHappyPath(t *testing.T) {
	q := &fakeQuerier{}
	db := newTestDb(t, q)

	rows := []EventRow{testRow("1-0", "a.txt"), testRow("2-0", "b.txt"), testRow("3-0", "c.txt")}
	confirmed, err := db.InsertBatch(context.Background(), rows)

	require.NoError(t, err)
	assert.Equal(t, []string{"1-0", "2-0", "3-0"}, confirmed)
	assert.Equal(t, []string{"1-0", "2-0", "3-0"}, q.inserted)
	assert.Equal(t, 1, q.beginCalls)
}

func TestInsertBatchEmpty(t *testing.T) {
	q := &fakeQuerier{}
	db := newTestDb(t, q)

	confirmed, err := db.InsertBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, confirmed)
	assert.Zero(t, q.beginCalls)
}

// When the copy-protocol batch fails, the store falls back to serial
// inserts and confirms exactly the rows that succeed.
func TestInsertBatchScalarFallbackConfirmsPartialProgress(t *testing.T) {
	q := &fakeQuerier{
		copyErr:        errors.New("invalid byte sequence for encoding"),
		failMessageIds: map[string]bool{"3-0": true},
	}
	db := newTestDb(t, q)

	rows := []EventRow{
		testRow("1-0", "a.txt"), testRow("2-0", "b.txt"), testRow("3-0", "c.txt"),
		testRow("4-0", "d.txt"), testRow("5-0", "e.txt"),
	}
	confirmed, err := db.InsertBatch(context.Background(), rows)

	assert.Error(t, err)
	assert.Equal(t, []string{"1-0", "2-0", "4-0", "5-0"}, confirmed)
}

func TestInsertBatchTotalFailure(t *testing.T) {
	q := &fakeQuerier{
		beginErr:       errors.New("database is shutting down"),
		failMessageIds: map[string]bool{"1-0": true, "2-0": true},
	}
	db := newTestDb(t, q)

	confirmed, err := db.InsertBatch(context.Background(), []EventRow{testRow("1-0", "a.txt"), testRow("2-0", "b.txt")})

	assert.Error(t, err)
	assert.Empty(t, confirmed)
}

// A message id that was confirmed once is confirmed from the cache on
// redelivery without another round trip to postgres.
func TestInsertBatchCacheShortCircuitsRedelivery(t *testing.T) {
	q := &fakeQuerier{}
	db := newTestDb(t, q)
	ctx := context.Background()

	_, err := db.InsertBatch(ctx, []EventRow{testRow("1-0", "a.txt")})
	require.NoError(t, err)
	require.Equal(t, 1, q.beginCalls)

	confirmed, err := db.InsertBatch(ctx, []EventRow{testRow("1-0", "a.txt")})
	require.NoError(t, err)
	assert.Equal(t, []string{"1-0"}, confirmed)
	assert.Equal(t, 1, q.beginCalls)
	assert.Zero(t, q.execCalls)
}

// Failed rows must not be cached, or redelivery could never repair them.
func TestInsertBatchDoesNotCacheFailedRows(t *testing.T) {
	q := &fakeQuerier{
		copyErr:        errors.New("invalid byte sequence for encoding"),
		failMessageIds: map[string]bool{"1-0": true},
	}
	db := newTestDb(t, q)
	ctx := context.Background()

	confirmed, err := db.InsertBatch(ctx, []EventRow{testRow("1-0", "a.txt")})
	assert.Error(t, err)
	assert.Empty(t, confirmed)

	// The database recovers; redelivery succeeds.
	q.copyErr = nil
	q.failMessageIds = nil
	confirmed, err = db.InsertBatch(ctx, []EventRow{testRow("1-0", "a.txt")})
	require.NoError(t, err)
	assert.Equal(t, []string{"1-0"}, confirmed)
}

func TestTruncateResetsCache(t *testing.T) {
	q := &fakeQuerier{}
	db := newTestDb(t, q)
	ctx := context.Background()

	_, err := db.InsertBatch(ctx, []EventRow{testRow("1-0", "a.txt")})
	require.NoError(t, err)

	require.NoError(t, db.Truncate(ctx))
	assert.True(t, q.truncated)

	// After a truncate the row genuinely needs re-inserting.
	_, err = db.InsertBatch(ctx, []EventRow{testRow("1-0", "a.txt")})
	require.NoError(t, err)
	assert.Equal(t, 2, q.beginCalls)
}

func TestUniqueTableName(t *testing.T) {
	a := uniqueTableName("file_events")
	b := uniqueTableName("file_events")
	assert.True(t, strings.HasPrefix(a, "file_events_tmp_"))
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "-")
}

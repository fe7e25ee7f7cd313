package eventdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/bhumitschaudhry/ConnectStorm/internal/common/stormerrors"
)

const insertSql = `INSERT INTO file_events (message_id, event_time, operation, filename, file_size, mime_type, storage_url, uploader_id)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	 ON CONFLICT DO NOTHING`

// InsertBatch writes the given rows and returns the message ids that are
// confirmed durable, in input order. A row whose message id is already known
// to the store counts as confirmed without touching postgres.
//
// We first insert the whole batch using the postgres copy protocol. If this
// fails we fall back to a slower, serial insert and confirm only the rows
// that make it in; the returned slice is valid even when the error is
// non-nil, so the caller can acknowledge partial progress before backing
// off.
func (e *EventDb) InsertBatch(ctx context.Context, rows []EventRow) ([]string, error) {
	confirmed := make([]string, 0, len(rows))
	pending := make([]EventRow, 0, len(rows))
	for _, row := range rows {
		if _, ok := e.cache.Get(row.MessageID); ok {
			confirmed = append(confirmed, row.MessageID)
		} else {
			pending = append(pending, row)
		}
	}
	if len(pending) == 0 {
		return confirmed, nil
	}

	err := e.insertBatch(ctx, pending)
	if err == nil {
		for _, row := range pending {
			e.cache.Add(row.MessageID, true)
			confirmed = append(confirmed, row.MessageID)
		}
		return confirmed, nil
	}

	log.Warnf("Inserting events via batch failed, will attempt to insert serially (this might be slow). Error was %+v", err)
	var lastErr error
	for _, row := range pending {
		if err := e.insertScalar(ctx, row); err != nil {
			log.Warnf("Insert for message %s (file %s) failed with error %+v", row.MessageID, row.Filename, err)
			lastErr = err
			continue
		}
		e.cache.Add(row.MessageID, true)
		confirmed = append(confirmed, row.MessageID)
	}
	return confirmed, lastErr
}

func (e *EventDb) insertBatch(ctx context.Context, rows []EventRow) error {
	return e.withDatabaseRetry(ctx, func() error {
		tmpTable := uniqueTableName("file_events")

		createTmp := func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, fmt.Sprintf(`
				CREATE TEMPORARY TABLE %s
				(
				  message_id  varchar(64),
				  event_time  timestamptz,
				  operation   varchar(32),
				  filename    text,
				  file_size   bigint,
				  mime_type   varchar(255),
				  storage_url text,
				  uploader_id varchar(128)
				) ON COMMIT DROP;`, tmpTable))
			return err
		}

		insertTmp := func(tx pgx.Tx) error {
			_, err := tx.CopyFrom(ctx,
				pgx.Identifier{tmpTable},
				[]string{"message_id", "event_time", "operation", "filename", "file_size", "mime_type", "storage_url", "uploader_id"},
				pgx.CopyFromSlice(len(rows), func(i int) ([]interface{}, error) {
					return []interface{}{
						rows[i].MessageID,
						rows[i].EventTime,
						rows[i].Operation,
						rows[i].Filename,
						rows[i].FileSize,
						rows[i].MimeType,
						rows[i].StorageURL,
						rows[i].UploaderID,
					}, nil
				}),
			)
			return err
		}

		copyToDest := func(tx pgx.Tx) error {
			_, err := tx.Exec(
				ctx,
				fmt.Sprintf(`
					INSERT INTO file_events (message_id, event_time, operation, filename, file_size, mime_type, storage_url, uploader_id) SELECT * from %s
					ON CONFLICT DO NOTHING`, tmpTable),
			)
			return err
		}

		return batchInsert(ctx, e.db, createTmp, insertTmp, copyToDest)
	})
}

func (e *EventDb) insertScalar(ctx context.Context, row EventRow) error {
	return e.withDatabaseRetry(ctx, func() error {
		_, err := e.db.Exec(ctx, insertSql,
			row.MessageID, row.EventTime, row.Operation, row.Filename,
			row.FileSize, row.MimeType, row.StorageURL, row.UploaderID)
		return err
	})
}

func batchInsert(ctx context.Context, db Querier, createTmp func(pgx.Tx) error,
	insertTmp func(pgx.Tx) error, copyToDest func(pgx.Tx) error,
) error {
	return pgx.BeginTxFunc(ctx, db, pgx.TxOptions{
		IsoLevel:       pgx.ReadCommitted,
		AccessMode:     pgx.ReadWrite,
		DeferrableMode: pgx.Deferrable,
	}, func(tx pgx.Tx) error {
		// Stage the batch in a temporary table first so the final insert
		// is a single statement.
		if err := createTmp(tx); err != nil {
			return err
		}
		if err := insertTmp(tx); err != nil {
			return err
		}
		return copyToDest(tx)
	})
}

// withDatabaseRetry executes a database function, retrying transient
// failures until it either succeeds or encounters a non-retryable error.
func (e *EventDb) withDatabaseRetry(ctx context.Context, executeDb func() error) error {
	backOff := time.Second
	const maxBackoff = 8 * time.Second
	const maxRetries = 4
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = executeDb()
		if err == nil {
			return nil
		}
		if !stormerrors.IsNetworkError(err) && !stormerrors.IsRetryablePostgresError(err) {
			return err
		}
		log.Warnf("Retryable error encountered executing sql, will wait for %s before retrying. Error was %v", backOff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backOff):
		}
		backOff = min(2*backOff, maxBackoff)
	}
	return errors.WithStack(&stormerrors.ErrMaxRetriesExceeded{
		Message:   fmt.Sprintf("gave up running database query after %d retries", maxRetries),
		LastError: err,
	})
}

func uniqueTableName(table string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%s_tmp_%s", table, suffix)
}

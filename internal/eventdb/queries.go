package eventdb

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// UploaderCount is one row of the per-uploader leaderboard.
type UploaderCount struct {
	UploaderID string
	Events     int64
}

// Stats summarises the stored events for status reporting.
type Stats struct {
	TotalEvents  int64
	TotalBytes   int64
	LastHour     int64
	LastDay      int64
	TopUploaders []UploaderCount
}

// Count returns the total number of stored file events.
func (e *EventDb) Count(ctx context.Context) (int64, error) {
	var count int64
	err := e.db.QueryRow(ctx, `SELECT count(*) FROM file_events`).Scan(&count)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}

// CountSince returns the number of events newer than the given age.
func (e *EventDb) CountSince(ctx context.Context, age time.Duration) (int64, error) {
	var count int64
	err := e.db.QueryRow(ctx,
		`SELECT count(*) FROM file_events WHERE event_time > now() - $1::interval`, age).Scan(&count)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}

// TopUploaders returns the uploaders with the most stored events.
func (e *EventDb) TopUploaders(ctx context.Context, limit int) ([]UploaderCount, error) {
	rows, err := e.db.Query(ctx, `
		SELECT uploader_id, count(*) AS events
		FROM file_events
		GROUP BY uploader_id
		ORDER BY events DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var counts []UploaderCount
	for rows.Next() {
		var c UploaderCount
		if err := rows.Scan(&c.UploaderID, &c.Events); err != nil {
			return nil, errors.WithStack(err)
		}
		counts = append(counts, c)
	}
	return counts, errors.WithStack(rows.Err())
}

// GetStats collects the status summary in one round of queries.
func (e *EventDb) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := e.db.QueryRow(ctx,
		`SELECT count(*), coalesce(sum(file_size), 0) FROM file_events`).
		Scan(&stats.TotalEvents, &stats.TotalBytes)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if stats.LastHour, err = e.CountSince(ctx, time.Hour); err != nil {
		return nil, err
	}
	if stats.LastDay, err = e.CountSince(ctx, 24*time.Hour); err != nil {
		return nil, err
	}
	if stats.TopUploaders, err = e.TopUploaders(ctx, 5); err != nil {
		return nil, err
	}
	return stats, nil
}

// Truncate deletes all stored events and resets the local cache. This is an
// administrative operation only.
func (e *EventDb) Truncate(ctx context.Context) error {
	if _, err := e.db.Exec(ctx, `TRUNCATE TABLE file_events`); err != nil {
		return errors.WithStack(err)
	}
	e.cache.Purge()
	return nil
}

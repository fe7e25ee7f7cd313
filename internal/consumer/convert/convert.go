// Package convert turns raw event log entries into rows for the event
// store. Entries that cannot possibly produce a valid row are reported so
// the worker can retire them without a database write.
package convert

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bhumitschaudhry/ConnectStorm/internal/eventdb"
	"github.com/bhumitschaudhry/ConnectStorm/internal/eventlog"
)

// Row converts a single entry. An error means the entry is structurally
// invalid and no amount of redelivery will fix it.
func Row(entry eventlog.Entry) (eventdb.EventRow, error) {
	storageUrl := entry.Values["storage_url"]
	filename := entry.Values["filename"]
	if storageUrl == "" {
		return eventdb.EventRow{}, errors.Errorf("entry %s is missing storage_url", entry.ID)
	}
	if filename == "" {
		return eventdb.EventRow{}, errors.Errorf("entry %s is missing filename", entry.ID)
	}

	operation := entry.Values["operation"]
	if operation == "" {
		operation = "UPLOAD"
	}

	// Malformed optional fields degrade to zero values rather than losing
	// the event.
	size, err := strconv.ParseInt(entry.Values["size"], 10, 64)
	if err != nil {
		size = 0
	}

	return eventdb.EventRow{
		MessageID:  entry.ID,
		EventTime:  eventTime(entry),
		Operation:  operation,
		Filename:   filename,
		FileSize:   size,
		MimeType:   entry.Values["mime_type"],
		StorageURL: storageUrl,
		UploaderID: entry.Values["uploader_id"],
	}, nil
}

// Rows converts a batch, splitting it into insertable rows and the ids of
// structurally invalid entries.
func Rows(entries []eventlog.Entry) ([]eventdb.EventRow, []string) {
	rows := make([]eventdb.EventRow, 0, len(entries))
	var invalid []string
	for _, entry := range entries {
		row, err := Row(entry)
		if err != nil {
			invalid = append(invalid, entry.ID)
			continue
		}
		rows = append(rows, row)
	}
	return rows, invalid
}

// eventTime prefers the producer's ts field and falls back to the
// millisecond clock embedded in the log-assigned entry id.
func eventTime(entry eventlog.Entry) time.Time {
	if ts, err := time.Parse(time.RFC3339, entry.Values["ts"]); err == nil {
		return ts
	}
	msString, _, _ := strings.Cut(entry.ID, "-")
	if ms, err := strconv.ParseInt(msString, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Now().UTC()
}

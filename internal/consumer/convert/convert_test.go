package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhumitschaudhry/ConnectStorm/internal/eventlog"
)

func validEntry() eventlog.Entry {
	return eventlog.Entry{
		ID: "1714559400000-0",
		Values: map[string]string{
			"operation":   "UPLOAD",
			"filename":    "report.pdf",
			"size":        "2048",
			"mime_type":   "application/pdf",
			"storage_url": "/storage/report.pdf",
			"uploader_id": "alice",
			"ts":          "2024-05-01T10:30:00Z",
		},
	}
}

func TestRow(t *testing.T) {
	row, err := Row(validEntry())
	require.NoError(t, err)

	assert.Equal(t, "1714559400000-0", row.MessageID)
	assert.Equal(t, "UPLOAD", row.Operation)
	assert.Equal(t, "report.pdf", row.Filename)
	assert.Equal(t, int64(2048), row.FileSize)
	assert.Equal(t, "application/pdf", row.MimeType)
	assert.Equal(t, "/storage/report.pdf", row.StorageURL)
	assert.Equal(t, "alice", row.UploaderID)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC), row.EventTime)
}

func TestRowMissingRequiredFields(t *testing.T) {
	entry := validEntry()
	delete(entry.Values, "storage_url")
	_, err := Row(entry)
	assert.Error(t, err)

	entry = validEntry()
	delete(entry.Values, "filename")
	_, err = Row(entry)
	assert.Error(t, err)
}

func TestRowDegradesMalformedOptionalFields(t *testing.T) {
	entry := validEntry()
	entry.Values["size"] = "not-a-number"
	entry.Values["operation"] = ""
	delete(entry.Values, "uploader_id")

	row, err := Row(entry)
	require.NoError(t, err)
	assert.Zero(t, row.FileSize)
	assert.Equal(t, "UPLOAD", row.Operation)
	assert.Empty(t, row.UploaderID)
}

func TestRowEventTimeFallsBackToEntryId(t *testing.T) {
	entry := validEntry()
	entry.Values["ts"] = "yesterday"

	row, err := Row(entry)
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1714559400000).UTC(), row.EventTime)
}

func TestRows(t *testing.T) {
	good := validEntry()
	bad := validEntry()
	bad.ID = "1714559400001-0"
	delete(bad.Values, "storage_url")

	rows, invalid := Rows([]eventlog.Entry{good, bad})
	require.Len(t, rows, 1)
	assert.Equal(t, good.ID, rows[0].MessageID)
	assert.Equal(t, []string{bad.ID}, invalid)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhumitschaudhry/ConnectStorm/internal/common/health"
	"github.com/bhumitschaudhry/ConnectStorm/internal/eventlog"
)

type fakeUploader struct {
	uploaded map[string]string
	err      error
}

func (f *fakeUploader) Upload(ctx context.Context, objectName string, contentType string, body io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	content, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if f.uploaded == nil {
		f.uploaded = map[string]string{}
	}
	f.uploaded[objectName] = string(content)
	return "/storage/" + objectName, nil
}

type fakeCounter struct {
	count int64
	err   error
}

func (f *fakeCounter) Count(ctx context.Context) (int64, error) {
	return f.count, f.err
}

type fakeWorker struct {
	triggered int
	last      time.Time
}

func (f *fakeWorker) TriggerCycle()          { f.triggered++ }
func (f *fakeWorker) LastSuccess() time.Time { return f.last }

type testHarness struct {
	server   *Server
	log      *eventlog.EventLog
	uploader *fakeUploader
	worker   *fakeWorker
}

func withServer(t *testing.T, action func(h *testHarness)) {
	t.Helper()
	mr := miniredis.RunT(t)
	db := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer db.Close()

	eventLog := eventlog.New(db, "connectstorm:uploads", "connectstorm_group")
	require.NoError(t, eventLog.EnsureGroup(context.Background()))

	uploader := &fakeUploader{}
	worker := &fakeWorker{last: time.Now()}
	checker := health.NewMultiChecker(eventLog)
	server := NewServer(eventLog, &fakeCounter{count: 42}, uploader, worker, checker, 10*1024*1024)

	action(&testHarness{server: server, log: eventLog, uploader: uploader, worker: worker})
}

func multipartUpload(t *testing.T, filename string, content string, uploaderId string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	if uploaderId != "" {
		require.NoError(t, w.WriteField("uploader_id", uploaderId))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeJson(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestApiUpload(t *testing.T) {
	withServer(t, func(h *testHarness) {
		rec := httptest.NewRecorder()
		h.server.Handler().ServeHTTP(rec, multipartUpload(t, "report.pdf", "pdf-bytes", "alice"))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeJson(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "report.pdf", body["filename"])
		assert.NotEmpty(t, body["stream_id"])

		// The content went to storage and the event to the log.
		require.Len(t, h.uploader.uploaded, 1)
		for name, content := range h.uploader.uploaded {
			assert.True(t, strings.HasSuffix(name, "_report.pdf"))
			assert.Equal(t, "pdf-bytes", content)
		}
		backlog, err := h.log.Backlog(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), backlog)

		// The appended payload is what the consumer expects.
		entries, err := h.log.ReadBatch(context.Background(), "test", 10, 10*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "UPLOAD", entries[0].Values["operation"])
		assert.Equal(t, "report.pdf", entries[0].Values["filename"])
		assert.Equal(t, "9", entries[0].Values["size"])
		assert.Equal(t, "alice", entries[0].Values["uploader_id"])
		assert.NotEmpty(t, entries[0].Values["storage_url"])
		assert.NotEmpty(t, entries[0].Values["ts"])
	})
}

func TestApiUploadMissingFile(t *testing.T) {
	withServer(t, func(h *testHarness) {
		req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(""))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
		rec := httptest.NewRecorder()
		h.server.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// A storage failure must not enqueue an event: the log would otherwise
// reference content that was never written.
func TestApiUploadStorageFailureEnqueuesNothing(t *testing.T) {
	withServer(t, func(h *testHarness) {
		h.uploader.err = errors.New("bucket unavailable")

		rec := httptest.NewRecorder()
		h.server.Handler().ServeHTTP(rec, multipartUpload(t, "a.txt", "x", ""))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		backlog, err := h.log.Backlog(context.Background())
		require.NoError(t, err)
		assert.Zero(t, backlog)
	})
}

func TestApiCounts(t *testing.T) {
	withServer(t, func(h *testHarness) {
		_, err := h.log.Append(context.Background(), map[string]string{"filename": "a.txt", "storage_url": "/s/a.txt"})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		h.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/counts", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeJson(t, rec)
		assert.Equal(t, float64(1), body["redis"])
		assert.Equal(t, float64(42), body["timescale"])
	})
}

func TestHealth(t *testing.T) {
	withServer(t, func(h *testHarness) {
		rec := httptest.NewRecorder()
		h.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeJson(t, rec)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, true, body["consumer_enabled"])
	})
}

func TestHealthUnhealthy(t *testing.T) {
	withServer(t, func(h *testHarness) {
		failing := health.CheckerFunc(func() error { return errors.New("redis unreachable") })
		h.server.checker = health.NewMultiChecker(failing)

		rec := httptest.NewRecorder()
		h.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "unhealthy", decodeJson(t, rec)["status"])
	})
}

func TestTriggerConsumer(t *testing.T) {
	withServer(t, func(h *testHarness) {
		rec := httptest.NewRecorder()
		h.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/trigger-consumer", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, h.worker.triggered)
	})
}

func TestTriggerConsumerDisabled(t *testing.T) {
	withServer(t, func(h *testHarness) {
		h.server.worker = nil

		rec := httptest.NewRecorder()
		h.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/trigger-consumer", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestIndexAndUploadPages(t *testing.T) {
	withServer(t, func(h *testHarness) {
		for _, path := range []string{"/", "/upload"} {
			rec := httptest.NewRecorder()
			h.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, rec.Code, path)
			assert.Contains(t, rec.Body.String(), "ConnectStorm", path)
		}
	})
}

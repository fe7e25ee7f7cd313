// Package server is the upload gateway: it writes file content to storage,
// appends the matching event to the durable log and exposes counts and
// health over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bhumitschaudhry/ConnectStorm/internal/common/health"
	"github.com/bhumitschaudhry/ConnectStorm/internal/storage"
)

// UploadLog is the slice of the event log the gateway needs.
type UploadLog interface {
	Append(ctx context.Context, values map[string]string) (string, error)
	Backlog(ctx context.Context) (int64, error)
}

// EventCounter reports how many events the store holds.
type EventCounter interface {
	Count(ctx context.Context) (int64, error)
}

// WorkerHandle is the gateway's view of an embedded consumer worker.
type WorkerHandle interface {
	TriggerCycle()
	LastSuccess() time.Time
}

type Server struct {
	log            UploadLog
	counter        EventCounter
	uploader       storage.Uploader
	worker         WorkerHandle
	checker        health.Checker
	maxUploadBytes int64
}

// NewServer wires the gateway's handlers. worker may be nil when no
// consumer runs in this process.
func NewServer(
	uploadLog UploadLog,
	counter EventCounter,
	uploader storage.Uploader,
	worker WorkerHandle,
	checker health.Checker,
	maxUploadBytes int64,
) *Server {
	return &Server{
		log:            uploadLog,
		counter:        counter,
		uploader:       uploader,
		worker:         worker,
		checker:        checker,
		maxUploadBytes: maxUploadBytes,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.index)
	mux.HandleFunc("GET /upload", s.uploadPage)
	mux.HandleFunc("POST /api/upload", s.apiUpload)
	mux.HandleFunc("GET /api/counts", s.apiCounts)
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("POST /api/trigger-consumer", s.triggerConsumer)
	return mux
}

// apiUpload stores the file first and only then appends the event, so a
// consumer can never observe an event whose content is missing.
func (s *Server) apiUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJson(w, http.StatusBadRequest, map[string]any{"error": "No file part"})
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeJson(w, http.StatusBadRequest, map[string]any{"error": "No file selected"})
		return
	}

	filename := filepath.Base(header.Filename)
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	uploaderId := r.FormValue("uploader_id")
	if uploaderId == "" {
		uploaderId = "anonymous"
	}

	storageUrl, err := s.uploader.Upload(r.Context(), storage.ObjectName(filename), mimeType, file)
	if err != nil {
		log.Warnf("Storing upload %s failed: %+v", filename, err)
		writeJson(w, http.StatusInternalServerError, map[string]any{"error": "Storage upload failed"})
		return
	}

	streamId, err := s.log.Append(r.Context(), map[string]string{
		"operation":   "UPLOAD",
		"filename":    filename,
		"size":        strconv.FormatInt(header.Size, 10),
		"mime_type":   mimeType,
		"storage_url": storageUrl,
		"uploader_id": uploaderId,
		"ts":          time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Warnf("Appending upload event for %s failed: %+v", filename, err)
		writeJson(w, http.StatusInternalServerError, map[string]any{"error": "Queueing upload event failed"})
		return
	}

	writeJson(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "File uploaded and queued",
		"filename":    filename,
		"size":        header.Size,
		"storage_url": storageUrl,
		"stream_id":   streamId,
	})
}

func (s *Server) apiCounts(w http.ResponseWriter, r *http.Request) {
	backlog, err := s.log.Backlog(r.Context())
	if err != nil {
		writeJson(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	// A database outage degrades counts rather than failing the page.
	stored, err := s.counter.Count(r.Context())
	if err != nil {
		log.Warnf("Counting stored events failed: %v", err)
		stored = 0
	}

	writeJson(w, http.StatusOK, map[string]any{
		"redis":     backlog,
		"timescale": stored,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.checker.Check(); err != nil {
		writeJson(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	queueLength, _ := s.log.Backlog(r.Context())
	status := map[string]any{
		"status":           "healthy",
		"consumer_enabled": s.worker != nil,
		"queue_length":     queueLength,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	}
	if s.worker != nil {
		if last := s.worker.LastSuccess(); !last.IsZero() {
			status["last_consumer_cycle"] = last.UTC().Format(time.RFC3339)
		}
	}
	writeJson(w, http.StatusOK, status)
}

func (s *Server) triggerConsumer(w http.ResponseWriter, r *http.Request) {
	if s.worker == nil {
		writeJson(w, http.StatusBadRequest, map[string]any{"error": "Consumer is disabled"})
		return
	}
	s.worker.TriggerCycle()
	queueLength, _ := s.log.Backlog(r.Context())
	writeJson(w, http.StatusOK, map[string]any{
		"success":         true,
		"queue_remaining": queueLength,
		"message":         "Consumer cycle triggered",
	})
}

func writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warnf("Failed to write response: %v", err)
	}
}

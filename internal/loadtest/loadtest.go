// Package loadtest floods the upload gateway with concurrent file uploads
// and reports how the pipeline kept up.
package loadtest

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// Base URL of the gateway, e.g. http://localhost:8080
	URL string
	// Total number of files to upload
	Files int
	// Number of uploads in flight at once
	Concurrency int
	// Size of each generated file
	FileSizeBytes int
	// Reported as the uploader of every file
	UploaderID string
}

type Report struct {
	Succeeded int64
	Failed    int64
	Duration  time.Duration
}

func (r *Report) String() string {
	rate := float64(r.Succeeded) / r.Duration.Seconds()
	return fmt.Sprintf("%d succeeded, %d failed in %s (%.1f uploads/s)",
		r.Succeeded, r.Failed, r.Duration.Round(time.Millisecond), rate)
}

// Run uploads config.Files generated files and returns the tally. Failed
// uploads are counted, not fatal; only a cancelled context aborts the run.
func Run(ctx context.Context, config Config) (*Report, error) {
	if config.Files <= 0 {
		return nil, errors.New("files must be positive")
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	client := &http.Client{Timeout: 60 * time.Second}
	report := &Report{}
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Concurrency)
	for i := 0; i < config.Files; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := uploadOne(ctx, client, config, i); err != nil {
				log.Warnf("Upload %d failed: %v", i, err)
				atomic.AddInt64(&report.Failed, 1)
			} else {
				atomic.AddInt64(&report.Succeeded, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	return report, nil
}

func uploadOne(ctx context.Context, client *http.Client, config Config, i int) error {
	content := make([]byte, config.FileSizeBytes)
	if _, err := rand.Read(content); err != nil {
		return errors.WithStack(err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fmt.Sprintf("loadtest_%d.bin", i))
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := part.Write(content); err != nil {
		return errors.WithStack(err)
	}
	if err := w.WriteField("uploader_id", config.UploaderID); err != nil {
		return errors.WithStack(err)
	}
	if err := w.Close(); err != nil {
		return errors.WithStack(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL+"/api/upload", &buf)
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Package storage persists uploaded file content. Events in the log carry
// only the storage URL returned here, never the bytes themselves.
package storage

import (
	"context"
	"io"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"github.com/bhumitschaudhry/ConnectStorm/internal/common/stormerrors"
)

const (
	ModeLocal = "local"
	ModeS3    = "s3"
)

type Config struct {
	// Either "local" or "s3"
	Mode  string
	Local LocalConfig
	S3    S3Config
}

type LocalConfig struct {
	Directory string
}

type S3Config struct {
	// Custom endpoint for S3-compatible stores (Cloudflare R2, MinIO);
	// empty means AWS S3
	Endpoint string
	Region   string
	Bucket   string
	// Static credentials; empty falls back to the ambient credential chain
	AccessKey string
	SecretKey string
	// Overrides the generated object URL prefix when set
	PublicBaseURL string
	// Path-style addressing instead of virtual-host
	UsePathStyle bool
}

// Uploader writes one object and returns the URL (or path) under which it
// is reachable.
type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, body io.Reader) (string, error)
}

// NewUploader builds the uploader for the configured backend.
func NewUploader(ctx context.Context, config Config) (Uploader, error) {
	switch config.Mode {
	case ModeS3:
		return newS3Uploader(ctx, config.S3)
	case ModeLocal, "":
		if config.Local.Directory == "" {
			return nil, errors.WithStack(&stormerrors.ErrInvalidConfiguration{
				Name:    "storage.local.directory",
				Message: "directory must be non-empty",
			})
		}
		return &localUploader{dir: config.Local.Directory}, nil
	default:
		return nil, errors.WithStack(&stormerrors.ErrInvalidConfiguration{
			Name:    "storage.mode",
			Message: "mode must be one of local, s3",
		})
	}
}

// ObjectName derives a unique object name from the client-supplied
// filename. The ULID prefix keeps concurrent uploads of the same filename
// from clobbering each other while the suffix stays recognisable.
func ObjectName(filename string) string {
	return ulid.Make().String() + "_" + filepath.Base(filename)
}

package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// localUploader copies uploads into a directory on the local filesystem and
// returns the destination path as the storage URL.
type localUploader struct {
	dir string
}

func (u *localUploader) Upload(ctx context.Context, objectName string, contentType string, body io.Reader) (string, error) {
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return "", errors.WithStack(err)
	}

	// The object name is client-derived; strip any path components.
	dest := filepath.Join(u.dir, filepath.Base(objectName))
	f, err := os.Create(dest)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return "", errors.WithStack(err)
	}
	if err := f.Close(); err != nil {
		return "", errors.WithStack(err)
	}
	return dest, nil
}

// Package blob stores binary objects (gallery artifacts, enrollment images)
// addressed by bucket and path.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/apperr"
)

// Store uploads and downloads objects.
type Store interface {
	Upload(ctx context.Context, bucket, path string, data []byte) (string, error)
	Download(ctx context.Context, bucket, path string) ([]byte, error)
}

// FSStore keeps objects as files under a root directory.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving blob directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// resolve maps bucket/path to a file inside the root, rejecting traversal.
func (s *FSStore) resolve(bucket, path string) (string, error) {
	if bucket == "" || path == "" {
		return "", apperr.Validation("bucket and path are required")
	}
	full := filepath.Join(s.root, bucket, filepath.FromSlash(path))
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", apperr.Validation("path %q escapes the blob root", path)
	}
	return full, nil
}

// Upload writes the object to a temp file and renames it into place so
// readers never observe a partial artifact.
func (s *FSStore) Upload(ctx context.Context, bucket, path string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.resolve(bucket, path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", apperr.Storage("mkdir "+bucket+"/"+path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", apperr.Storage("create temp "+bucket+"/"+path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", apperr.Storage("write "+bucket+"/"+path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", apperr.Storage("close "+bucket+"/"+path, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return "", apperr.Storage("rename "+bucket+"/"+path, err)
	}
	return "file://" + filepath.ToSlash(full), nil
}

// Download reads the object stored under bucket/path.
func (s *FSStore) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(bucket, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full) //nolint:gosec // path is confined to the blob root
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFound("blob", bucket+"/"+path)
	}
	if err != nil {
		return nil, apperr.Storage("read "+bucket+"/"+path, err)
	}
	return data, nil
}

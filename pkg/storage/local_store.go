package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore saves uploads to disk under <basePath>/<bucket>/<key> and serves
// them back through Handler.
type LocalStore struct {
	basePath string
	baseURL  string
}

// NewLocalStore creates the base directory if missing. baseURL is the public
// prefix Handler is mounted under, e.g. "http://localhost:8080/files".
func NewLocalStore(basePath, baseURL string) (*LocalStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, errors.New("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{basePath: basePath, baseURL: baseURL}, nil
}

// Put writes the object, creating bucket and key directories as needed.
func (f *LocalStore) Put(_ context.Context, bucket, key string, r io.Reader, _ int64, _ string) error {
	target, err := f.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// PublicURL returns the URL Handler serves the object from.
func (f *LocalStore) PublicURL(bucket, key string) string {
	return joinURL(f.baseURL, bucket, key)
}

// Handler serves stored objects read-only. Directory listings are refused.
func (f *LocalStore) Handler() http.Handler {
	files := http.FileServer(http.Dir(f.basePath))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func (f *LocalStore) resolve(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket %q", bucket)
	}
	cleanKey := filepath.Clean("/" + key)
	if cleanKey == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	root := filepath.Join(f.basePath, bucket)
	target := filepath.Join(root, cleanKey)
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return target, nil
}

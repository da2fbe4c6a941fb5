package storage

import (
	"context"
	"io"
	"net/url"
	"strings"
)

// Default bucket names for uploaded assets.
const (
	BucketCovers       = "book-covers"
	BucketPDFs         = "book-pdfs"
	BucketAuthorImages = "author-images"
)

// ObjectStore stores uploaded files and reports the public URL they are served from.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	PublicURL(bucket, key string) string
}

// joinURL appends bucket and the escaped key segments to base.
func joinURL(base, bucket, key string) string {
	segments := strings.Split(strings.Trim(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

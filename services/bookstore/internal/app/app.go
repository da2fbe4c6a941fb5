// Package app is the bookstore catalog: author profiles, author book
// management, the public catalog and the admin listings.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookstore/internal/errs"
	"bookstore/internal/util"
	"bookstore/internal/validation"
	"bookstore/pkg/storage"
	"bookstore/pkg/store"
	"bookstore/pkg/upload"
	"bookstore/services/bookstore/internal/access"
)

// Buckets names the object-store buckets for each asset class.
type Buckets struct {
	Covers       string
	PDFs         string
	AuthorImages string
}

func (b Buckets) withDefaults() Buckets {
	if strings.TrimSpace(b.Covers) == "" {
		b.Covers = storage.BucketCovers
	}
	if strings.TrimSpace(b.PDFs) == "" {
		b.PDFs = storage.BucketPDFs
	}
	if strings.TrimSpace(b.AuthorImages) == "" {
		b.AuthorImages = storage.BucketAuthorImages
	}
	return b
}

// Config holds the collaborators of the catalog application.
type Config struct {
	Store   store.CatalogStore
	Objects storage.ObjectStore
	Access  *access.Service
	Buckets Buckets
}

// App is the catalog application service.
type App struct {
	store     store.CatalogStore
	objects   storage.ObjectStore
	access    *access.Service
	buckets   Buckets
	validator *validation.Validator
	now       func() time.Time
	newID     func() string
}

// New constructs the catalog application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store is required")
	}
	if cfg.Access == nil {
		return nil, errors.New("access service is required")
	}
	return &App{
		store:     cfg.Store,
		objects:   cfg.Objects,
		access:    cfg.Access,
		buckets:   cfg.Buckets.withDefaults(),
		validator: validation.New(),
		now:       time.Now,
		newID:     util.NewID,
	}, nil
}

// storedObject is a file already written to the object store.
type storedObject struct {
	Bucket string
	Key    string
}

// putPart inspects p as kind and writes it under the owner's key prefix.
// Inspection failures are validation errors; write failures are store failures.
func (a *App) putPart(ctx context.Context, bucket, ownerID string, p *upload.Part, kind upload.Kind) (storedObject, string, error) {
	contentType, err := upload.Inspect(*p, kind)
	if err != nil {
		if errors.Is(err, upload.ErrRejected) {
			return storedObject{}, "", errs.Validation(err.Error())
		}
		return storedObject{}, "", errs.StoreFailure(err)
	}
	key := upload.ObjectKey(ownerID, a.now(), p.Filename)
	if err := a.objects.Put(ctx, bucket, key, p.Reader(), p.Size, contentType); err != nil {
		return storedObject{}, "", errs.StoreFailure(fmt.Errorf("upload %s: %w", kind, err))
	}
	return storedObject{Bucket: bucket, Key: key}, a.objects.PublicURL(bucket, key), nil
}

// logOrphans records uploaded objects left unreferenced by a failed write.
// They are not removed.
func logOrphans(ctx context.Context, cause error, objs ...storedObject) {
	logger := util.LoggerFromContext(ctx)
	for _, o := range objs {
		if o.Key == "" {
			continue
		}
		logger.Warn("orphaned upload", "bucket", o.Bucket, "key", o.Key, "err", cause)
	}
}

func inspectOnly(p *upload.Part, kind upload.Kind) error {
	if p == nil {
		return nil
	}
	if _, err := upload.Inspect(*p, kind); err != nil {
		if errors.Is(err, upload.ErrRejected) {
			return errs.Validation(err.Error())
		}
		return errs.StoreFailure(err)
	}
	return nil
}

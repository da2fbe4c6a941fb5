// Package publish owns the draft/published lifecycle of books.
package publish

import (
	"context"
	"errors"
	"strings"
	"time"

	"bookstore/internal/errs"
	"bookstore/pkg/domain"
	"bookstore/services/bookstore/internal/access"
)

// Store writes publish state.
type Store interface {
	SetPublishState(ctx context.Context, id string, published bool, at *time.Time) (bool, error)
}

// Service moves books between Draft and Published. Concurrent toggles are
// last-write-wins.
type Service struct {
	store Store
	now   func() time.Time
}

// New builds a Service.
func New(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	return &Service{store: store, now: time.Now}, nil
}

// Publish marks a book published. Republishing refreshes published_at.
func (s *Service) Publish(ctx context.Context, admin access.Admin, bookID string) error {
	publish := true
	return s.SetPublishState(ctx, admin, bookID, &publish)
}

// Unpublish returns a book to draft and clears published_at.
func (s *Service) Unpublish(ctx context.Context, admin access.Admin, bookID string) error {
	publish := false
	return s.SetPublishState(ctx, admin, bookID, &publish)
}

// SetPublishState applies the toggle requested by an admin. A nil publish
// means the caller sent no boolean.
func (s *Service) SetPublishState(ctx context.Context, admin access.Admin, bookID string, publish *bool) error {
	if !admin.Valid() {
		return errs.Forbidden(access.ReasonNotAllowed)
	}
	bookID = strings.TrimSpace(bookID)
	switch {
	case bookID == "" && publish == nil:
		return errs.Validation("bookId is required; publish must be a boolean")
	case bookID == "":
		return errs.Validation("bookId is required")
	case publish == nil:
		return errs.Validation("publish must be a boolean")
	}

	var at *time.Time
	if *publish {
		now := s.now().UTC()
		at = &now
	}
	ok, err := s.store.SetPublishState(ctx, bookID, *publish, at)
	if err != nil {
		return errs.StoreFailure(err)
	}
	if !ok {
		return errs.NotFound("book not found")
	}
	return nil
}

// Viewer describes who is looking at a book.
type Viewer struct {
	PrincipalID string
	IsAdmin     bool
}

// Visible reports whether v may see b. Published books are public; owners
// and admins see drafts too.
func Visible(b domain.Book, v Viewer) bool {
	if b.IsPublished {
		return true
	}
	if v.IsAdmin {
		return true
	}
	return v.PrincipalID != "" && v.PrincipalID == b.AuthorID
}

package store

import (
	"context"
	"errors"
	"time"

	"bookstore/pkg/domain"
)

// ErrEmailTaken is returned by CreateUser when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// BookFilter narrows ListBooks. The zero value lists every book.
type BookFilter struct {
	AuthorID      string
	PublishedOnly bool
}

// UserStore persists identity-provider accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) error
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
}

// AuthorStore persists author profiles.
type AuthorStore interface {
	// UpsertAuthor inserts or updates the profile keyed on ID; created_at is kept on update.
	UpsertAuthor(ctx context.Context, a domain.Author) (domain.Author, error)
	GetAuthor(ctx context.Context, id string) (domain.Author, bool, error)
	// ListAuthorsWithBookCounts returns all authors newest first, each with
	// the count of all their books regardless of publish state.
	ListAuthorsWithBookCounts(ctx context.Context) ([]domain.AuthorSummary, error)
}

// BookStore persists books. Listings are ordered by created_at descending.
type BookStore interface {
	CreateBook(ctx context.Context, b domain.Book) error
	GetBook(ctx context.Context, id string) (domain.Book, bool, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]domain.Book, error)
	// UpdateBookContent rewrites the author-editable columns of a book owned by
	// authorID. It reports false when no such book exists.
	UpdateBookContent(ctx context.Context, id, authorID string, c domain.BookContent) (bool, error)
	// DeleteBook removes a book owned by authorID. It reports false when no such book exists.
	DeleteBook(ctx context.Context, id, authorID string) (bool, error)
	// SetPublishState writes is_published and published_at together.
	// A nil at clears published_at. It reports false when the book does not exist.
	SetPublishState(ctx context.Context, id string, published bool, at *time.Time) (bool, error)
}

// AdminGrantStore persists admin role grants.
type AdminGrantStore interface {
	HasAdminGrant(ctx context.Context, userID string) (bool, error)
	GrantAdmin(ctx context.Context, userID string) error
	RevokeAdmin(ctx context.Context, userID string) (bool, error)
	ListAdminGrants(ctx context.Context) ([]domain.AdminGrant, error)
}

// CatalogStore is everything the bookstore service reads and writes.
type CatalogStore interface {
	AuthorStore
	BookStore
	AdminGrantStore
}

// SessionStore issues and resolves session tokens.
type SessionStore interface {
	NewSession(user domain.User) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// JWK represents a JSON Web Key entry used by JWKS endpoints.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKSProvider is an optional capability exposed by session stores that can
// publish JSON Web Keys.
type JWKSProvider interface {
	JWKS() []JWK
}

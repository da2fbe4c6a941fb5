// Package access decides who may act on the bookstore. Every decision is
// taken fresh against the identity provider and the relational store.
package access

import (
	"context"
	"errors"
	"strings"

	"bookstore/internal/errs"
	"bookstore/pkg/domain"
)

// Denial reasons surfaced in error messages and security logs.
const (
	ReasonNoSession  = "no session"
	ReasonNotAllowed = "not allowed"
	ReasonNoGrant    = "no grant"
	ReasonNotAuthor  = "not an author"
)

// AuthorProfilePath is where principals without an author profile are sent.
const AuthorProfilePath = "/author/profile"

// IdentityProvider verifies bearer tokens. A token the provider rejects
// yields an error matching errs.ErrUnauthenticated; any other error means the
// provider could not answer.
type IdentityProvider interface {
	Resolve(ctx context.Context, token string) (domain.Principal, error)
}

// Store is the slice of the relational store access decisions read.
type Store interface {
	HasAdminGrant(ctx context.Context, userID string) (bool, error)
	GetAuthor(ctx context.Context, id string) (domain.Author, bool, error)
}

// Config wires a Service.
type Config struct {
	// AdminEmails is the operator allow-list. Matching is case-insensitive.
	AdminEmails []string
	Identity    IdentityProvider
	Store       Store
}

// Service is the access control service.
type Service struct {
	adminEmails map[string]struct{}
	identity    IdentityProvider
	store       Store
}

// Admin is proof that a principal passed the admin check. Only this package
// can mint a valid one.
type Admin struct {
	principal domain.Principal
	valid     bool
}

// Principal returns the authorized principal.
func (a Admin) Principal() domain.Principal { return a.principal }

// Valid reports whether a was produced by a successful admin check.
func (a Admin) Valid() bool { return a.valid }

// New builds a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Identity == nil {
		return nil, errors.New("identity provider is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	emails := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, e := range cfg.AdminEmails {
		e = normalizeEmail(e)
		if e == "" {
			continue
		}
		emails[e] = struct{}{}
	}
	return &Service{adminEmails: emails, identity: cfg.Identity, store: cfg.Store}, nil
}

// ResolvePrincipal maps a bearer token to a principal. Blank tokens never
// reach the identity provider.
func (s *Service) ResolvePrincipal(ctx context.Context, token string) (domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Principal{}, errs.Unauthenticated(ReasonNoSession)
	}
	p, err := s.identity.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthenticated) {
			return domain.Principal{}, errs.Unauthenticated(ReasonNoSession).WithCause(err)
		}
		return domain.Principal{}, errs.StoreFailure(err)
	}
	if strings.TrimSpace(p.ID) == "" {
		return domain.Principal{}, errs.Unauthenticated(ReasonNoSession)
	}
	return p, nil
}

// AuthorizeAdmin resolves token and runs the admin check on the result.
func (s *Service) AuthorizeAdmin(ctx context.Context, token string) (Admin, error) {
	p, err := s.ResolvePrincipal(ctx, token)
	if err != nil {
		return Admin{}, err
	}
	return s.AdminFor(ctx, p)
}

// AdminFor runs the admin check on an already resolved principal: the email
// must be on the allow-list and an admin grant must exist. Both are required.
func (s *Service) AdminFor(ctx context.Context, p domain.Principal) (Admin, error) {
	if strings.TrimSpace(p.ID) == "" {
		return Admin{}, errs.Unauthenticated(ReasonNoSession)
	}
	if !s.emailAllowed(p.Email) {
		return Admin{}, errs.Forbidden(ReasonNotAllowed)
	}
	ok, err := s.store.HasAdminGrant(ctx, p.ID)
	if err != nil {
		return Admin{}, errs.StoreFailure(err)
	}
	if !ok {
		return Admin{}, errs.Forbidden(ReasonNoGrant)
	}
	return Admin{principal: p, valid: true}, nil
}

// IsAdmin is the non-failing check used for UI gating.
func (s *Service) IsAdmin(ctx context.Context, token string) bool {
	admin, err := s.AuthorizeAdmin(ctx, token)
	return err == nil && admin.Valid()
}

// AuthorizeAuthor returns the principal's author profile. A missing profile
// and a failed lookup are both denials carrying a redirect to profile creation.
func (s *Service) AuthorizeAuthor(ctx context.Context, p domain.Principal) (domain.Author, error) {
	denied := errs.Forbidden(ReasonNotAuthor).WithDetails(map[string]string{"redirectTo": AuthorProfilePath})
	if strings.TrimSpace(p.ID) == "" {
		return domain.Author{}, denied
	}
	author, ok, err := s.store.GetAuthor(ctx, p.ID)
	if err != nil {
		return domain.Author{}, denied.WithCause(err)
	}
	if !ok {
		return domain.Author{}, denied
	}
	return author, nil
}

func (s *Service) emailAllowed(email string) bool {
	email = normalizeEmail(email)
	if email == "" {
		return false
	}
	_, ok := s.adminEmails[email]
	return ok
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Package app implements account sign-up, sign-in and token introspection
// for the identity service.
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"bookstore/internal/errs"
	"bookstore/internal/util"
	"bookstore/internal/validation"
	"bookstore/pkg/auth"
	"bookstore/pkg/domain"
	"bookstore/pkg/store"
)

// ErrInvalidCredentials is shown to end users. It does not reveal whether the email exists.
var ErrInvalidCredentials = errs.Unauthenticated("incorrect email address or password")

// Sessions issues, verifies and revokes access tokens.
type Sessions interface {
	store.SessionStore
	store.JWKSProvider
	Verify(ctx context.Context, token string) (store.SessionClaims, error)
}

// Config holds the collaborators of the identity application.
type Config struct {
	Users    store.UserStore
	Sessions Sessions
}

// App is the identity application service.
type App struct {
	users     store.UserStore
	sessions  Sessions
	validator *validation.Validator
	now       func() time.Time
}

// New constructs the identity application.
func New(cfg Config) (*App, error) {
	if cfg.Users == nil {
		return nil, errors.New("user store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	return &App{
		users:     cfg.Users,
		sessions:  cfg.Sessions,
		validator: validation.New(),
		now:       time.Now,
	}, nil
}

type credentials struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
}

// SignUp registers an account and returns it with a fresh access token.
func (a *App) SignUp(ctx context.Context, email, password string) (domain.User, string, error) {
	creds := credentials{Email: normalizeEmail(email), Password: password}
	if err := a.validator.Validate(creds); err != nil {
		return domain.User{}, "", err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", errs.Validation(err.Error())
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", errs.StoreFailure(err)
	}
	now := a.now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        creds.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return domain.User{}, "", errs.Conflict("email already registered")
		}
		return domain.User{}, "", errs.StoreFailure(err)
	}
	return a.issue(user)
}

// SignIn checks credentials and returns the account with a fresh access token.
func (a *App) SignIn(ctx context.Context, email, password string) (domain.User, string, error) {
	creds := credentials{Email: normalizeEmail(email), Password: password}
	if err := a.validator.Validate(creds); err != nil {
		return domain.User{}, "", err
	}
	user, ok, err := a.users.GetUserByEmail(ctx, creds.Email)
	if err != nil {
		return domain.User{}, "", errs.StoreFailure(err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	return a.issue(user)
}

// SignOut revokes token until it expires. Unknown tokens are ignored.
func (a *App) SignOut(_ context.Context, token string) error {
	if err := a.sessions.DeleteSession(token); err != nil {
		return errs.StoreFailure(err)
	}
	return nil
}

// Me returns the account behind a valid, unrevoked token.
func (a *App) Me(ctx context.Context, token string) (domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return domain.User{}, errs.Unauthenticated("unauthorized")
	}
	claims, err := a.sessions.Verify(ctx, token)
	if err != nil {
		return domain.User{}, errs.Unauthenticated("unauthorized").WithCause(err)
	}
	user, ok, err := a.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return domain.User{}, errs.StoreFailure(err)
	}
	if !ok {
		return domain.User{}, errs.Unauthenticated("unauthorized")
	}
	return user, nil
}

// JWKS returns the public keys resource servers verify tokens with.
func (a *App) JWKS() []store.JWK {
	return a.sessions.JWKS()
}

func (a *App) issue(user domain.User) (domain.User, string, error) {
	token, err := a.sessions.NewSession(user)
	if err != nil {
		return domain.User{}, "", errs.StoreFailure(err)
	}
	return user, token, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package identityclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bookstore/internal/errs"
	"bookstore/internal/usertoken"
	"bookstore/pkg/domain"
)

// ErrInvalidToken is returned when a bearer token is rejected. It matches
// errs.ErrUnauthenticated; transport failures and *APIError do not.
var ErrInvalidToken = errs.Unauthenticated("invalid bearer token")

// TokenVerifier checks token signature and claims locally before a network round trip.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (usertoken.Claims, error)
}

// Config wires the identity service client.
type Config struct {
	BaseURL    string
	Verifier   TokenVerifier
	HTTPClient *http.Client
}

// Client resolves bearer tokens to principals through the identity service.
type Client struct {
	baseURL    string
	verifier   TokenVerifier
	httpClient *http.Client
}

// APIError is a non-auth failure reported by the identity service.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity service: %d %s", e.Status, e.Message)
}

// New constructs an identity service client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("identity base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{baseURL: baseURL, verifier: cfg.Verifier, httpClient: httpClient}, nil
}

type meResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Resolve returns the principal behind token. Tokens failing local
// verification never reach the identity service; the service's /auth/me
// answer is authoritative and also catches revoked sessions.
func (c *Client) Resolve(ctx context.Context, token string) (domain.Principal, error) {
	var localSubject string
	if c.verifier != nil {
		claims, err := c.verifier.Verify(ctx, token)
		if err != nil {
			return domain.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		localSubject = claims.Subject
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return domain.Principal{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("call identity service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return domain.Principal{}, ErrInvalidToken
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return domain.Principal{}, &APIError{Status: resp.StatusCode, Message: msg, Code: strings.TrimSpace(errResp.Code)}
	}

	var me meResponse
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return domain.Principal{}, fmt.Errorf("decode identity response: %w", err)
	}
	me.ID = strings.TrimSpace(me.ID)
	if me.ID == "" {
		return domain.Principal{}, ErrInvalidToken
	}
	if localSubject != "" && localSubject != me.ID {
		return domain.Principal{}, fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
	}
	return domain.Principal{ID: me.ID, Email: strings.TrimSpace(me.Email)}, nil
}

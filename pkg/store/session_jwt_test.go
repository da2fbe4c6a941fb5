package store

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"bookstore/pkg/domain"
)

func TestJWTSessionStoreEnforcesAudience(t *testing.T) {
	signing := newRSStoreWithOptions(t, "aud-signing", nil, JWTOptions{
		Issuer:   "issuer-a",
		Audience: "aud-a",
		Leeway:   time.Second,
	})
	verify := newRSStoreWithOptions(t, "aud-verify", nil, JWTOptions{
		Issuer:   "issuer-a",
		Audience: "aud-b",
		Leeway:   time.Second,
	})

	token, err := signing.NewSession(domain.User{ID: "user-claim", Email: "c@example.com"})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, _, err := verify.GetUserIDByToken(token); err == nil {
		t.Fatalf("expected audience mismatch to fail")
	}
}

func TestJWTSessionStoreCarriesEmailClaim(t *testing.T) {
	s := newRSStoreWithOptions(t, "email", nil, JWTOptions{})
	token, err := s.NewSession(domain.User{ID: "user-1", Email: "Writer@Example.com"})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	claims, err := s.Verify(t.Context(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "Writer@Example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti")
	}
}

func TestJWTSessionStoreRevokesByJTI(t *testing.T) {
	revoker := NewMemoryTokenRevoker()
	store := newRSStoreWithOptions(t, "revoke-jti", revoker, JWTOptions{})

	token, err := store.NewSession(domain.User{ID: "user-revoke"})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := store.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	_, ok, err := store.GetUserIDByToken(token)
	if !errors.Is(err, ErrTokenRevoked) || ok {
		t.Fatalf("expected revoked token to fail, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreDeleteSessionIgnoresGarbage(t *testing.T) {
	store := newRSStoreWithOptions(t, "garbage", NewMemoryTokenRevoker(), JWTOptions{})
	if err := store.DeleteSession("not-a-token"); err != nil {
		t.Fatalf("expected garbage token to be ignored, got %v", err)
	}
}

func TestJWTSessionStoreFromPEMNewSessionAndJWKS(t *testing.T) {
	privatePath, _ := writeRSAKeyPairFiles(t, "active")

	s, err := NewJWTSessionStoreFromPEM(privatePath, "kid-active", nil, time.Minute, NewMemoryTokenRevoker(), JWTOptions{})
	if err != nil {
		t.Fatalf("new rs256 store: %v", err)
	}

	token, err := s.NewSession(domain.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if !ok || userID != "user-1" {
		t.Fatalf("unexpected verify result: ok=%v userID=%q", ok, userID)
	}

	keys := s.JWKS()
	if len(keys) != 1 {
		t.Fatalf("expected 1 jwk, got %d", len(keys))
	}
	if keys[0].Kid != "kid-active" {
		t.Fatalf("unexpected kid: %q", keys[0].Kid)
	}
	if keys[0].Kty != "RSA" || keys[0].Use != "sig" || keys[0].Alg != "RS256" {
		t.Fatalf("unexpected jwk fields: %+v", keys[0])
	}
	if keys[0].N == "" || keys[0].E == "" {
		t.Fatalf("expected RSA modulus/exponent in jwks")
	}
}

func TestJWTSessionStoreVerifiesPreviousKeyDuringRotation(t *testing.T) {
	oldPrivatePath, oldPublicPath := writeRSAKeyPairFiles(t, "old")
	newPrivatePath, _ := writeRSAKeyPairFiles(t, "new")

	oldStore, err := NewJWTSessionStoreFromPEM(oldPrivatePath, "kid-old", nil, time.Minute, nil, JWTOptions{})
	if err != nil {
		t.Fatalf("new old store: %v", err)
	}
	oldToken, err := oldStore.NewSession(domain.User{ID: "user-2"})
	if err != nil {
		t.Fatalf("old token: %v", err)
	}

	rotated, err := NewJWTSessionStoreFromPEM(newPrivatePath, "kid-new", map[string]string{"kid-old": oldPublicPath}, time.Minute, nil, JWTOptions{})
	if err != nil {
		t.Fatalf("new rotated store: %v", err)
	}
	userID, ok, err := rotated.GetUserIDByToken(oldToken)
	if err != nil || !ok || userID != "user-2" {
		t.Fatalf("unexpected verify result: ok=%v userID=%q err=%v", ok, userID, err)
	}
	if keys := rotated.JWKS(); len(keys) != 2 {
		t.Fatalf("expected 2 jwks entries, got %d", len(keys))
	}

	unrotated, err := NewJWTSessionStoreFromPEM(newPrivatePath, "kid-new", nil, time.Minute, nil, JWTOptions{})
	if err != nil {
		t.Fatalf("new unrotated store: %v", err)
	}
	if _, _, err := unrotated.GetUserIDByToken(oldToken); err == nil {
		t.Fatalf("expected error for unknown kid")
	}
}

func TestJWTSessionStoreRejectsMalformedClaims(t *testing.T) {
	key := generateRSAKey(t)
	s, err := NewJWTSessionStore(key, "jwt-active", nil, time.Minute, nil, JWTOptions{Issuer: "issuer-a", Audience: "aud-a", Leeway: time.Second})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	base := func() jwt.RegisteredClaims {
		now := time.Now().UTC()
		return jwt.RegisteredClaims{
			Subject:   "user-x",
			Issuer:    "issuer-a",
			Audience:  jwt.ClaimStrings{"aud-a"},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
			ID:        "jti-x",
		}
	}

	tests := []struct {
		name   string
		claims func() jwt.RegisteredClaims
		kid    string
	}{
		{
			name: "future issued at",
			claims: func() jwt.RegisteredClaims {
				c := base()
				c.IssuedAt = jwt.NewNumericDate(time.Now().Add(2 * time.Minute))
				return c
			},
			kid: "jwt-active",
		},
		{
			name:   "missing kid",
			claims: base,
			kid:    "",
		},
		{
			name: "missing jti",
			claims: func() jwt.RegisteredClaims {
				c := base()
				c.ID = ""
				return c
			},
			kid: "jwt-active",
		},
		{
			name: "missing expiry",
			claims: func() jwt.RegisteredClaims {
				c := base()
				c.ExpiresAt = nil
				return c
			},
			kid: "jwt-active",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			token := jwt.NewWithClaims(jwt.SigningMethodRS256, tc.claims())
			if tc.kid != "" {
				token.Header["kid"] = tc.kid
			}
			signed, err := token.SignedString(key)
			if err != nil {
				t.Fatalf("sign token: %v", err)
			}
			if _, _, err := s.GetUserIDByToken(signed); err == nil {
				t.Fatalf("expected token to be rejected")
			}
		})
	}
}

func TestNewJWTSessionStoreValidatesArguments(t *testing.T) {
	if _, err := NewJWTSessionStore(nil, "", nil, time.Minute, nil, JWTOptions{}); err == nil {
		t.Fatalf("expected nil signer to fail")
	}
	if _, err := NewJWTSessionStore(generateRSAKey(t), "", nil, 0, nil, JWTOptions{}); err == nil {
		t.Fatalf("expected zero ttl to fail")
	}
}

func generateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

func writeRSAKeyPairFiles(t *testing.T, prefix string) (string, string) {
	t.Helper()

	key := generateRSAKey(t)
	dir := t.TempDir()
	privatePath := filepath.Join(dir, prefix+"-private.pem")
	publicPath := filepath.Join(dir, prefix+"-public.pem")

	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		t.Fatalf("write private key: %v", err)
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
		t.Fatalf("write public key: %v", err)
	}
	return privatePath, publicPath
}

func newRSStoreWithOptions(t *testing.T, prefix string, revoker TokenRevoker, opts JWTOptions) *JWTSessionStore {
	t.Helper()
	privatePath, _ := writeRSAKeyPairFiles(t, prefix)
	store, err := NewJWTSessionStoreFromPEM(privatePath, "jwt-active", nil, time.Minute, revoker, opts)
	if err != nil {
		t.Fatalf("new rs store: %v", err)
	}
	return store
}

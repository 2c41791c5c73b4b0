package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

type testIssuer struct {
	key     jwk.Key
	server  *httptest.Server
	fetches atomic.Int32
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	key, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("failed to wrap key: %v", err)
	}
	_ = key.Set(jwk.KeyIDKey, "test-key")
	_ = key.Set(jwk.AlgorithmKey, jwa.RS256)

	pub, err := jwk.PublicKeyOf(key)
	if err != nil {
		t.Fatalf("failed to derive public key: %v", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		t.Fatalf("failed to build key set: %v", err)
	}

	ti := &testIssuer{key: key}
	ti.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			_ = json.NewEncoder(w).Encode(Discovery{Issuer: ti.server.URL, JWKSURI: ti.server.URL + "/jwks"})
		case "/jwks":
			ti.fetches.Add(1)
			_ = json.NewEncoder(w).Encode(set)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ti.server.Close)
	return ti
}

func (ti *testIssuer) sign(t *testing.T, issuer, audience, subject string, exp time.Time) string {
	t.Helper()

	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		Audience([]string{audience}).
		Subject(subject).
		IssuedAt(time.Now()).
		Expiration(exp).
		Claim("email", "user@example.com").
		Claim("name", "Test User").
		Build()
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, ti.key))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return string(signed)
}

func TestVerifier_Verify(t *testing.T) {
	t.Parallel()

	ti := newTestIssuer(t)
	issuer := ti.server.URL
	verifier := NewVerifier(NewJWKSManager(time.Hour), issuer+"/jwks", issuer, "voice-app")
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid token", ti.sign(t, issuer, "voice-app", "user-1", future), false},
		{"wrong issuer", ti.sign(t, "https://evil.example.com", "voice-app", "user-1", future), true},
		{"wrong audience", ti.sign(t, issuer, "other-app", "user-1", future), true},
		{"expired", ti.sign(t, issuer, "voice-app", "user-1", time.Now().Add(-time.Hour)), true},
		{"missing subject", ti.sign(t, issuer, "voice-app", "", future), true},
		{"garbage", "not.a.token", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := verifier.Verify(context.Background(), tt.token)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if claims.Sub != "user-1" || claims.Email != "user@example.com" || claims.Name != "Test User" {
				t.Errorf("unexpected claims: %+v", claims)
			}
			if claims.Aud != "voice-app" || claims.Iss != issuer {
				t.Errorf("unexpected issuer/audience: %+v", claims)
			}
		})
	}

	if got := ti.fetches.Load(); got != 1 {
		t.Errorf("Expected key set to be fetched once, got %d", got)
	}
}

func TestJWKSManager_ServesStaleOnFetchFailure(t *testing.T) {
	t.Parallel()

	ti := newTestIssuer(t)
	m := NewJWKSManager(time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }

	url := ti.server.URL + "/jwks"
	if _, err := m.GetJWKS(context.Background(), url); err != nil {
		t.Fatalf("GetJWKS() error = %v", err)
	}

	ti.server.Close()
	now = now.Add(2 * time.Minute)
	keys, err := m.GetJWKS(context.Background(), url)
	if err != nil {
		t.Fatalf("Expected stale keys, got error %v", err)
	}
	if keys.Len() != 1 {
		t.Errorf("Expected 1 key, got %d", keys.Len())
	}

	m.Invalidate(url)
	if _, err := m.GetJWKS(context.Background(), url); err == nil {
		t.Error("Expected error after invalidation with issuer down")
	}
}

func TestResolveJWKSURL(t *testing.T) {
	t.Parallel()

	ti := newTestIssuer(t)

	got, err := ResolveJWKSURL(context.Background(), ti.server.URL, "")
	if err != nil {
		t.Fatalf("ResolveJWKSURL() error = %v", err)
	}
	if got != ti.server.URL+"/jwks" {
		t.Errorf("ResolveJWKSURL() = %q", got)
	}

	got, err = ResolveJWKSURL(context.Background(), ti.server.URL, "https://keys.example.com")
	if err != nil || got != "https://keys.example.com" {
		t.Errorf("Expected explicit URL to win, got %q, %v", got, err)
	}
}

package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testIssuer serves a JWKS endpoint for a generated RSA key and signs tokens with it.
type testIssuer struct {
	key     *rsa.PrivateKey
	kid     string
	server  *httptest.Server
	fetches atomic.Int64
	fail    atomic.Bool
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	issuer := &testIssuer{key: key, kid: "test-key-1"}
	issuer.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		issuer.fetches.Add(1)
		if issuer.fail.Load() {
			http.Error(w, "provider down", http.StatusInternalServerError)
			return
		}
		pub := &key.PublicKey
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": issuer.kid,
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(issuer.server.Close)
	return issuer
}

func (i *testIssuer) sign(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = i.kid
	signed, err := token.SignedString(i.key)
	require.NoError(t, err)
	return signed
}

func TestVerifySubject(t *testing.T) {
	issuer := newTestIssuer(t)
	verifier := NewVerifier(NewJWKSCache(issuer.server.URL, DefaultTTL))

	sub, err := verifier.VerifySubject(context.Background(), issuer.sign(t, "user-123"))
	require.NoError(t, err)
	assert.Equal(t, "user-123", sub)
}

func TestVerifySubjectRejectsForgedToken(t *testing.T) {
	issuer := newTestIssuer(t)
	verifier := NewVerifier(NewJWKSCache(issuer.server.URL, DefaultTTL))

	// Token signed by a different key with the same kid.
	otherIssuer := newTestIssuer(t)
	_, err := verifier.VerifySubject(context.Background(), otherIssuer.sign(t, "user-123"))
	assert.Error(t, err)
}

func TestVerifySubjectRejectsExpiredToken(t *testing.T) {
	issuer := newTestIssuer(t)
	verifier := NewVerifier(NewJWKSCache(issuer.server.URL, DefaultTTL))

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	token.Header["kid"] = issuer.kid
	signed, err := token.SignedString(issuer.key)
	require.NoError(t, err)

	_, err = verifier.VerifySubject(context.Background(), signed)
	assert.Error(t, err)
}

func TestJWKSCacheReusesFreshKeys(t *testing.T) {
	issuer := newTestIssuer(t)
	cache := NewJWKSCache(issuer.server.URL, time.Minute)
	verifier := NewVerifier(cache)

	for range 3 {
		_, err := verifier.VerifySubject(context.Background(), issuer.sign(t, "u1"))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), issuer.fetches.Load())
}

func TestJWKSCacheServesStaleOnRefreshFailure(t *testing.T) {
	issuer := newTestIssuer(t)
	// Zero-ish TTL forces a refresh attempt on every lookup.
	cache := NewJWKSCache(issuer.server.URL, time.Nanosecond)
	verifier := NewVerifier(cache)

	_, err := verifier.VerifySubject(context.Background(), issuer.sign(t, "u1"))
	require.NoError(t, err)

	issuer.fail.Store(true)
	sub, err := verifier.VerifySubject(context.Background(), issuer.sign(t, "u2"))
	require.NoError(t, err)
	assert.Equal(t, "u2", sub)
}

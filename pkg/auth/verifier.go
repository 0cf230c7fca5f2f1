package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates bearer tokens and extracts the subject (user id).
type Verifier struct {
	cache *JWKSCache
}

// NewVerifier creates a Verifier over a shared JWKS cache.
func NewVerifier(cache *JWKSCache) *Verifier {
	return &Verifier{cache: cache}
}

// VerifySubject checks the token signature and returns the sub claim.
// Only RSA signatures are accepted; alg confusion (e.g. HS256 signed with
// the public key bytes) is rejected by the method allowlist.
func (v *Verifier) VerifySubject(ctx context.Context, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.cache.Key(ctx, kid)
	}, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))
	if err != nil {
		return "", fmt.Errorf("token verification failed: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject claim")
	}
	return sub, nil
}

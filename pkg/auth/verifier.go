// Package auth verifies access tokens issued by the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

var ErrMissingSubject = errors.New("token has no subject")

type Verifier interface {
	Verify(ctx context.Context, tokenString string) (jwt.Token, error)
}

// Claims are the identity claims the storefront reads from a verified token.
type Claims struct {
	Subject string
	Email   string
	Name    string
}

// ClaimsOf extracts Claims from a verified token. The subject is mandatory;
// name falls back to preferred_username when absent.
func ClaimsOf(token jwt.Token) (Claims, error) {
	sub, ok := token.Subject()
	if !ok || sub == "" {
		return Claims{}, ErrMissingSubject
	}
	c := Claims{Subject: sub}
	_ = token.Get("email", &c.Email)
	if err := token.Get("name", &c.Name); err != nil || c.Name == "" {
		_ = token.Get("preferred_username", &c.Name)
	}
	return c, nil
}

// JWTVerifier verifies tokens against a JWKS endpoint.
// The key set is cached and refetched at most once per minInterval.
type JWTVerifier struct {
	mu sync.RWMutex

	jwksURL  string
	issuer   string
	clientID string

	cachedSet     jwk.Set
	lastRefreshed time.Time
	minInterval   time.Duration
}

// NewJWTVerifier fetches the key set once so that a bad configuration fails at startup.
func NewJWTVerifier(ctx context.Context, cfg config.IdP) (*JWTVerifier, error) {
	v := &JWTVerifier{
		jwksURL:     cfg.JwksURL,
		issuer:      cfg.Issuer,
		clientID:    cfg.ClientID,
		minInterval: cfg.MinInterval,
	}
	if _, err := v.keySet(ctx); err != nil {
		return nil, fmt.Errorf("initial JWKS fetch failed: %w", err)
	}
	return v, nil
}

func (v *JWTVerifier) keySet(ctx context.Context) (jwk.Set, error) {
	v.mu.RLock()
	if v.cachedSet != nil && time.Since(v.lastRefreshed) < v.minInterval {
		set := v.cachedSet
		v.mu.RUnlock()
		return set, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	// another goroutine may have refreshed while we waited for the lock
	if v.cachedSet != nil && time.Since(v.lastRefreshed) < v.minInterval {
		return v.cachedSet, nil
	}
	set, err := jwk.Fetch(ctx, v.jwksURL)
	if err != nil {
		// a stale set beats no set while the endpoint is down
		if v.cachedSet != nil {
			return v.cachedSet, nil
		}
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", v.jwksURL, err)
	}
	v.cachedSet = set
	v.lastRefreshed = time.Now()
	return v.cachedSet, nil
}

// Verify checks signature, expiry, issuer and authorized party.
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (jwt.Token, error) {
	set, err := v.keySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get keyset for verification: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithClaimValue("azp", v.clientID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	return token, nil
}

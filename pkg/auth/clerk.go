package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	lru "github.com/hashicorp/golang-lru/v2"
)

// verifyCacheSize bounds the verified-session cache. Entries are evicted LRU
// and expire with the underlying token.
const verifyCacheSize = 4096

// ClerkProvider resolves request identity by verifying Clerk session JWTs
// against the instance JWKS. Session truth lives in Clerk; this provider
// only verifies and normalizes claims.
type ClerkProvider struct {
	verifier *oidc.IDTokenVerifier
	cache    *lru.Cache[string, cachedIdentity]
}

type cachedIdentity struct {
	ctx       Context
	expiresAt time.Time
}

// clerkClaims is the subset of Clerk session token claims Telesis consumes
type clerkClaims struct {
	SessionID string `json:"sid"`
	OrgID     string `json:"org_id"`
}

// NewClerkProvider discovers the Clerk instance OIDC configuration and
// prepares a JWT verifier. issuerURL is the instance issuer,
// e.g. https://clerk.example.com.
func NewClerkProvider(ctx context.Context, issuerURL string) (*ClerkProvider, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover identity provider: %w", err)
	}

	// Clerk session tokens carry no aud claim for backend verification
	verifier := provider.Verifier(&oidc.Config{SkipClientIDCheck: true})

	cache, err := lru.New[string, cachedIdentity](verifyCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification cache: %w", err)
	}

	return &ClerkProvider{
		verifier: verifier,
		cache:    cache,
	}, nil
}

// Resolve verifies the Bearer session token and returns the normalized
// identity tuple. Any verification failure maps to ErrUnauthenticated; the
// underlying cause is wrapped for server-side logs only.
func (p *ClerkProvider) Resolve(ctx context.Context, r *http.Request) (*Context, error) {
	raw, err := bearerToken(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if entry, ok := p.cache.Get(raw); ok {
		if time.Now().Before(entry.expiresAt) {
			authCtx := entry.ctx
			return &authCtx, nil
		}
		p.cache.Remove(raw)
	}

	token, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: token verification failed: %v", ErrUnauthenticated, err)
	}

	var claims clerkClaims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: malformed claims: %v", ErrUnauthenticated, err)
	}

	authCtx := Context{
		UserID:    token.Subject,
		OrgID:     claims.OrgID,
		SessionID: claims.SessionID,
	}

	p.cache.Add(raw, cachedIdentity{ctx: authCtx, expiresAt: token.Expiry})
	return &authCtx, nil
}

// bearerToken extracts the token from the Authorization header.
// Format: "Bearer <token>"
func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("invalid authorization header format")
	}
	return parts[1], nil
}

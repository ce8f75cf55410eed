package middleware

import (
	"net/http"

	"github.com/telesis-app/telesis/pkg/auth"
	"github.com/telesis-app/telesis/pkg/contextkeys"
	"github.com/telesis-app/telesis/pkg/httputil"
	"github.com/telesis-app/telesis/pkg/security"
)

// AuthGuard wraps handlers with identity resolution. Two modes:
//
//   - WithAuth requires the full tuple (user, organization, session).
//   - WithPartialAuth requires only a user, for routes where organization
//     membership does not exist yet (onboarding, org creation).
//
// The guard covers only the resolution step. Handler failures are the
// handler's to convert; the guard does not blanket-catch them.
type AuthGuard struct {
	provider auth.Provider
	secLog   *security.Logger
	onReject func(reason string) // metrics hook
}

// NewAuthGuard creates a route guard using the given identity provider
func NewAuthGuard(provider auth.Provider, secLog *security.Logger, onReject func(string)) *AuthGuard {
	return &AuthGuard{
		provider: provider,
		secLog:   secLog,
		onReject: onReject,
	}
}

// WithAuth requires a complete identity tuple. Missing or invalid
// credentials yield a fixed 401 envelope with a WWW-Authenticate challenge;
// provider error detail never reaches the client.
func (g *AuthGuard) WithAuth(next http.Handler) http.Handler {
	return g.guard(next, true)
}

// WithPartialAuth requires only a user identity, tolerating a missing
// organization.
func (g *AuthGuard) WithPartialAuth(next http.Handler) http.Handler {
	return g.guard(next, false)
}

func (g *AuthGuard) guard(next http.Handler, requireOrg bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, err := g.provider.Resolve(r.Context(), r)
		if err != nil {
			g.reject(w, r, "resolution failed")
			return
		}

		complete := authCtx.Complete()
		if requireOrg && !complete {
			g.reject(w, r, "incomplete identity")
			return
		}
		if !requireOrg && !authCtx.HasUser() {
			g.reject(w, r, "missing user")
			return
		}

		if g.secLog != nil {
			g.secLog.Log(security.AuthSuccess(authCtx.UserID, authCtx.SessionID, r.URL.Path, r.Method))
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		ctx = contextkeys.WithUserID(ctx, authCtx.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *AuthGuard) reject(w http.ResponseWriter, r *http.Request, reason string) {
	if g.secLog != nil {
		g.secLog.Log(security.AuthFailure(reason, r.URL.Path, r.Method))
	}
	if g.onReject != nil {
		g.onReject(reason)
	}
	httputil.WriteUnauthorized(w)
}

// GetAuthContext extracts the auth context from a request. Nil when the
// request did not pass through a guard.
func GetAuthContext(r *http.Request) *auth.Context {
	val := r.Context().Value(contextkeys.AuthKey)
	if val == nil {
		return nil
	}
	authCtx, ok := val.(*auth.Context)
	if !ok {
		return nil
	}
	return authCtx
}

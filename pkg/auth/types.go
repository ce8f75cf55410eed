package auth

import (
	"context"
	"errors"
	"net/http"
)

// Context is the normalized identity claim for one request. It is produced
// per-request by a Provider and never persisted.
type Context struct {
	UserID    string `json:"user_id"`
	OrgID     string `json:"org_id,omitempty"`
	SessionID string `json:"session_id"`
}

// Complete reports whether all identity fields required for full auth are
// present.
func (c *Context) Complete() bool {
	return c != nil && c.UserID != "" && c.OrgID != "" && c.SessionID != ""
}

// HasUser reports whether the minimum identity (a user) is present. Partial
// auth tolerates a missing organization.
func (c *Context) HasUser() bool {
	return c != nil && c.UserID != ""
}

// ErrUnauthenticated is returned by providers when the request carries no
// valid credentials. Details stay server-side.
var ErrUnauthenticated = errors.New("unauthenticated")

// Provider resolves the identity of an inbound request. Implementations call
// the external identity service; they do not issue sessions or tokens.
type Provider interface {
	Resolve(ctx context.Context, r *http.Request) (*Context, error)
}

// StaticProvider resolves every request to a fixed context. Test helper.
type StaticProvider struct {
	Ctx *Context
	Err error
}

// Resolve implements Provider
func (p *StaticProvider) Resolve(_ context.Context, _ *http.Request) (*Context, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Ctx, nil
}

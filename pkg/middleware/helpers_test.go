package middleware

import (
	"net/http"

	"github.com/telesis-app/telesis/pkg/auth"
	"github.com/telesis-app/telesis/pkg/contextkeys"
)

// withTestAuth attaches an authenticated identity to the request context
func withTestAuth(r *http.Request, userID, orgID, sessionID string) *http.Request {
	ctx := contextkeys.WithAuth(r.Context(), &auth.Context{
		UserID:    userID,
		OrgID:     orgID,
		SessionID: sessionID,
	})
	return r.WithContext(ctx)
}

// Package auth resolves request identity against the external identity
// provider (Clerk) and defines the per-request AuthContext consumed by the
// route guards. Session and organization membership truth lives in the
// provider; Telesis never issues tokens.
package auth

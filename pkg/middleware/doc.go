// Package middleware provides the request gates applied in front of the API
// handlers: authentication guards, organization boundary enforcement, and
// per-identifier rate limiting with both an in-process fixed-window limiter
// and a Redis-backed distributed variant.
package middleware

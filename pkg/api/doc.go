// Package api assembles the HTTP server: route registration, the middleware
// chain, and the public health endpoint.
package api

// Package orgs manages tenant organizations: registration against the
// identity provider's organization identifier, Stripe customer linkage, and
// the /api/organizations endpoints.
package orgs

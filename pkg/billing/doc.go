// Package billing integrates with Stripe: customer provisioning linked to
// organizations, webhook-driven subscription state, and signature
// verification for inbound events.
package billing

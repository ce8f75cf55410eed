package orgs

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a tenant. ClerkOrgID is the identity-provider identifier
// carried in session tokens; it is the value every request is scoped by.
type Organization struct {
	ID               uuid.UUID `json:"id"`
	ClerkOrgID       string    `json:"clerkOrgId"`
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	StripeCustomerID string    `json:"stripeCustomerId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// CreateOrganizationRequest is the POST /api/organizations payload
type CreateOrganizationRequest struct {
	ClerkOrgID string `json:"clerkOrgId"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
}

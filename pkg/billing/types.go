package billing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Subscription mirrors the billing provider's subscription state for an
// organization
type Subscription struct {
	ID                   uuid.UUID `json:"id"`
	OrganizationID       uuid.UUID `json:"organizationId"`
	StripeSubscriptionID string    `json:"stripeSubscriptionId"`
	Status               string    `json:"status"`
	Plan                 string    `json:"plan,omitempty"`
	CurrentPeriodEnd     time.Time `json:"currentPeriodEnd,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Subscription statuses tracked from webhook events
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
	StatusUnpaid   = "unpaid"
)

// WebhookEvent is the envelope Stripe posts to the webhook endpoint
type WebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// subscriptionObject is the subset of Stripe's subscription object the
// service consumes
type subscriptionObject struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Items            struct {
		Data []struct {
			Price struct {
				Nickname string `json:"nickname"`
				ID       string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// invoiceObject is the subset of Stripe's invoice object the service
// consumes
type invoiceObject struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Paid         bool   `json:"paid"`
}

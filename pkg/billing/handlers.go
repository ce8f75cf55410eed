package billing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/telesis-app/telesis/pkg/httputil"
	"github.com/telesis-app/telesis/pkg/middleware"
	"github.com/telesis-app/telesis/pkg/observability"
	"github.com/telesis-app/telesis/pkg/orgs"
	"github.com/telesis-app/telesis/pkg/security"
	"github.com/telesis-app/telesis/pkg/validation"
)

const maxWebhookBody = 1 << 20 // Stripe events are small; cap the body read

var createCustomerSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1, "maxLength": 255},
		"email": {"type": "string", "maxLength": 255}
	},
	"additionalProperties": false
}`)

// Handlers exposes the billing HTTP endpoints
type Handlers struct {
	service       *PostgresService
	orgs          *orgs.PostgresService
	stripe        *StripeClient
	webhookSecret string
	secLog        *security.Logger
	logger        *observability.Logger
}

// NewHandlers creates the billing handlers
func NewHandlers(service *PostgresService, orgService *orgs.PostgresService, stripe *StripeClient,
	webhookSecret string, secLog *security.Logger, logger *observability.Logger) *Handlers {
	return &Handlers{
		service:       service,
		orgs:          orgService,
		stripe:        stripe,
		webhookSecret: webhookSecret,
		secLog:        secLog,
		logger:        logger,
	}
}

// RegisterRoutes mounts the billing routes. The webhook endpoint is
// unauthenticated; the signature check is its authentication. The customer
// and subscription routes require a selected organization.
func (h *Handlers) RegisterRoutes(r *mux.Router, guard *middleware.AuthGuard, boundary *middleware.OrgBoundary) {
	withOrg := func(next http.Handler) http.Handler {
		return guard.WithPartialAuth(boundary.RequireOrganization(next))
	}
	r.Handle("/api/billing/webhook", http.HandlerFunc(h.Webhook)).Methods(http.MethodPost)
	r.Handle("/api/billing/customers", withOrg(http.HandlerFunc(h.CreateCustomer))).Methods(http.MethodPost)
	r.Handle("/api/billing/subscription", withOrg(http.HandlerFunc(h.GetSubscription))).Methods(http.MethodGet)
}

// CreateCustomer handles POST /api/billing/customers. Creates the Stripe
// customer and links it to the caller's organization.
func (h *Handlers) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := createCustomerSchema.DecodeBody(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	existing, err := h.orgs.GetByClerkOrgID(r.Context(), authCtx.OrgID)
	if err != nil {
		if errors.Is(err, orgs.ErrNotFound) {
			httputil.WriteNotFound(w, "organization not registered")
			return
		}
		h.logger.WithError(err).Error("failed to load organization")
		httputil.WriteInternalError(w)
		return
	}
	if existing.StripeCustomerID != "" {
		httputil.WriteConflict(w, "organization already has a billing customer", httputil.CodeStripeCustomerConflict)
		return
	}

	customer, err := h.stripe.CreateCustomer(r.Context(), req.Name, req.Email, authCtx.OrgID)
	if err != nil {
		h.logger.WithError(err).Error("stripe customer creation failed")
		httputil.WriteInternalError(w)
		return
	}

	org, err := h.orgs.LinkStripeCustomer(r.Context(), authCtx.OrgID, customer.ID)
	if err != nil {
		if errors.Is(err, orgs.ErrStripeIDConflict) {
			httputil.WriteConflict(w, "stripe customer already linked", httputil.CodeStripeCustomerConflict)
			return
		}
		h.logger.WithError(err).Error("failed to link stripe customer")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteCreated(w, org)
}

// GetSubscription handles GET /api/billing/subscription
func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	org, err := h.orgs.GetByClerkOrgID(r.Context(), authCtx.OrgID)
	if err != nil {
		if errors.Is(err, orgs.ErrNotFound) {
			httputil.WriteNotFound(w, "organization not registered")
			return
		}
		h.logger.WithError(err).Error("failed to load organization")
		httputil.WriteInternalError(w)
		return
	}

	sub, err := h.service.GetByOrganization(r.Context(), org.ID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			httputil.WriteNotFound(w, "no subscription")
			return
		}
		h.logger.WithError(err).Error("failed to load subscription")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, sub)
}

// Webhook handles POST /api/billing/webhook
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.WriteValidationError(w, "Invalid JSON format")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if err := VerifySignature(payload, sigHeader, h.webhookSecret, time.Now()); err != nil {
		if h.secLog != nil {
			h.secLog.Log(security.SuspiciousActivity("", "", r.URL.Path, r.Method,
				"webhook signature verification failed"))
		}
		httputil.WriteErrorCode(w, http.StatusUnauthorized, "invalid webhook signature", httputil.CodeUnauthorized)
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		httputil.WriteValidationError(w, "Invalid JSON format")
		return
	}

	if err := h.handleEvent(r, event); err != nil {
		h.logger.WithError(err).WithField("event_type", event.Type).Error("webhook processing failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"received": true})
}

func (h *Handlers) handleEvent(r *http.Request, event WebhookEvent) error {
	ctx := r.Context()

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		var sub subscriptionObject
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return err
		}
		_, err := h.service.UpsertSubscription(ctx, sub)
		return err

	case "customer.subscription.deleted":
		var sub subscriptionObject
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return err
		}
		err := h.service.MarkCanceled(ctx, sub.ID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			// Unknown subscription; acknowledge so Stripe stops retrying
			return nil
		}
		return err

	case "invoice.paid":
		var inv invoiceObject
		if err := json.Unmarshal(event.Data.Object, &inv); err != nil {
			return err
		}
		if inv.Subscription == "" {
			return nil
		}
		err := h.service.MarkActive(ctx, inv.Subscription)
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil
		}
		return err

	case "invoice.payment_failed":
		var inv invoiceObject
		if err := json.Unmarshal(event.Data.Object, &inv); err != nil {
			return err
		}
		if inv.Subscription == "" {
			return nil
		}
		err := h.service.MarkPastDue(ctx, inv.Subscription)
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil
		}
		return err

	default:
		// Unhandled event types are acknowledged
		h.logger.WithField("event_type", event.Type).Debug("ignoring webhook event")
		return nil
	}
}

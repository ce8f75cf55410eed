package orgs

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/telesis-app/telesis/pkg/httputil"
	"github.com/telesis-app/telesis/pkg/middleware"
	"github.com/telesis-app/telesis/pkg/observability"
	"github.com/telesis-app/telesis/pkg/security"
	"github.com/telesis-app/telesis/pkg/validation"
)

var createOrgSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["clerkOrgId", "name"],
	"properties": {
		"clerkOrgId": {"type": "string", "minLength": 1, "maxLength": 255},
		"name": {"type": "string", "minLength": 1, "maxLength": 255},
		"slug": {"type": "string", "pattern": "^[a-z0-9-]*$", "maxLength": 255}
	},
	"additionalProperties": false
}`)

// Handlers exposes the organization HTTP endpoints
type Handlers struct {
	service *PostgresService
	secLog  *security.Logger
	logger  *observability.Logger
}

// NewHandlers creates the organization handlers
func NewHandlers(service *PostgresService, secLog *security.Logger, logger *observability.Logger) *Handlers {
	return &Handlers{service: service, secLog: secLog, logger: logger}
}

// RegisterRoutes mounts the organization routes. Organization endpoints run
// under partial auth: a signed-in user provisioning their first organization
// has no organization yet.
func (h *Handlers) RegisterRoutes(r *mux.Router, guard *middleware.AuthGuard, limit func(http.Handler) http.Handler) {
	list := guard.WithPartialAuth(http.HandlerFunc(h.List))
	create := guard.WithPartialAuth(http.HandlerFunc(h.Create))
	if limit != nil {
		list = limit(list)
		create = limit(create)
	}
	r.Handle("/api/organizations", list).Methods(http.MethodGet)
	r.Handle("/api/organizations", create).Methods(http.MethodPost)
}

// List handles GET /api/organizations. Listing is scoped to the caller's
// organization; a caller who has not selected one yet sees an empty list.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	limit, offset, err := httputil.ParsePagination(r, 50, 200)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	if authCtx == nil || authCtx.OrgID == "" {
		httputil.WriteSuccessMeta(w, []*Organization{}, map[string]interface{}{
			"total":  int64(0),
			"limit":  limit,
			"offset": offset,
		})
		return
	}

	orgs, total, err := h.service.List(r.Context(), authCtx.OrgID, limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("failed to list organizations")
		if h.secLog != nil {
			h.secLog.Log(security.SystemError(r.URL.Path, r.Method, err, ""))
		}
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccessMeta(w, orgs, map[string]interface{}{
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Create handles POST /api/organizations
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	var req CreateOrganizationRequest
	if err := createOrgSchema.DecodeBody(r, &req); err != nil {
		if h.secLog != nil {
			h.secLog.Log(security.ValidationFailed(authCtx.UserID, authCtx.OrgID, r.URL.Path, r.Method, err.Error()))
		}
		httputil.WriteValidationError(w, err.Error())
		return
	}

	org, err := h.service.Create(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrOrgIDConflict):
			httputil.WriteConflict(w, "organization already registered", httputil.CodeOrganizationIDConflict)
		case errors.Is(err, ErrInvalidClerkOrgID):
			httputil.WriteValidationError(w, "clerkOrgId: String length must be greater than or equal to 1")
		default:
			h.logger.WithError(err).Error("failed to create organization")
			if h.secLog != nil {
				h.secLog.Log(security.SystemError(r.URL.Path, r.Method, err, ""))
			}
			httputil.WriteInternalError(w)
		}
		return
	}

	httputil.WriteCreated(w, org)
}

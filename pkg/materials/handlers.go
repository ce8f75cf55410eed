package materials

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/telesis-app/telesis/pkg/httputil"
	"github.com/telesis-app/telesis/pkg/middleware"
	"github.com/telesis-app/telesis/pkg/observability"
	"github.com/telesis-app/telesis/pkg/security"
	"github.com/telesis-app/telesis/pkg/validation"
)

var createMaterialSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["title"],
	"properties": {
		"title": {"type": "string", "minLength": 1, "maxLength": 500},
		"description": {"type": "string", "maxLength": 5000},
		"contentType": {"type": "string", "maxLength": 255},
		"content": {"type": "string"},
		"organizationId": {"type": "string", "maxLength": 255},
		"trainerId": {"type": "string", "maxLength": 255}
	},
	"additionalProperties": false
}`)

// Handlers exposes the material HTTP endpoints
type Handlers struct {
	service  *PostgresService
	boundary *middleware.OrgBoundary
	secLog   *security.Logger
	logger   *observability.Logger
}

// NewHandlers creates the material handlers
func NewHandlers(service *PostgresService, boundary *middleware.OrgBoundary, secLog *security.Logger, logger *observability.Logger) *Handlers {
	return &Handlers{service: service, boundary: boundary, secLog: secLog, logger: logger}
}

// RegisterRoutes mounts the material routes. Every route requires a signed-in
// user and a selected organization; a user without one gets the distinct 403
// rather than the credential 401.
func (h *Handlers) RegisterRoutes(r *mux.Router, guard *middleware.AuthGuard, limit func(http.Handler) http.Handler) {
	withOrg := func(next http.Handler) http.Handler {
		return guard.WithPartialAuth(h.boundary.RequireOrganization(next))
	}
	list := withOrg(http.HandlerFunc(h.List))
	create := withOrg(http.HandlerFunc(h.Create))
	get := withOrg(http.HandlerFunc(h.Get))
	del := withOrg(http.HandlerFunc(h.Delete))
	if limit != nil {
		list = limit(list)
		create = limit(create)
		get = limit(get)
		del = limit(del)
	}
	r.Handle("/api/materials", list).Methods(http.MethodGet)
	r.Handle("/api/materials", create).Methods(http.MethodPost)
	r.Handle("/api/materials/{id}", get).Methods(http.MethodGet)
	r.Handle("/api/materials/{id}", del).Methods(http.MethodDelete)
}

// List handles GET /api/materials
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	limit, offset, err := httputil.ParsePagination(r, 50, 200)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	items, total, err := h.service.List(r.Context(), authCtx.OrgID, limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("failed to list materials")
		if h.secLog != nil {
			h.secLog.Log(security.SystemError(r.URL.Path, r.Method, err, ""))
		}
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccessMeta(w, items, map[string]interface{}{
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Create handles POST /api/materials
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	var req CreateMaterialRequest
	if err := createMaterialSchema.DecodeBody(r, &req); err != nil {
		if h.secLog != nil {
			h.secLog.Log(security.ValidationFailed(authCtx.UserID, authCtx.OrgID, r.URL.Path, r.Method, err.Error()))
		}
		httputil.WriteValidationError(w, err.Error())
		return
	}

	// A payload may name its organization and trainer, but only its own
	if !h.boundary.CheckResourceOrg(w, r, req.OrganizationID) {
		return
	}
	if !h.boundary.CheckActorUser(w, r, req.TrainerID) {
		return
	}

	var content []byte
	if req.Content != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			httputil.WriteValidationError(w, "content: Must be base64 encoded")
			return
		}
		content = decoded
	}

	m, err := h.service.Create(r.Context(), authCtx.OrgID, authCtx.UserID, req, content)
	if err != nil {
		h.logger.WithError(err).Error("failed to create material")
		if h.secLog != nil {
			h.secLog.Log(security.SystemError(r.URL.Path, r.Method, err, ""))
		}
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteCreated(w, m)
}

// Get handles GET /api/materials/{id}
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	idStr := mux.Vars(r)["id"]
	id, err := uuid.Parse(idStr)
	if err != nil {
		httputil.WriteValidationError(w, "id: Must be a valid UUID")
		return
	}

	m, err := h.service.Get(r.Context(), authCtx.OrgID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "material not found")
			return
		}
		h.logger.WithError(err).Error("failed to get material")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, m)
}

// Delete handles DELETE /api/materials/{id}
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	idStr := mux.Vars(r)["id"]
	id, err := uuid.Parse(idStr)
	if err != nil {
		httputil.WriteValidationError(w, "id: Must be a valid UUID")
		return
	}

	if err := h.service.Delete(r.Context(), authCtx.OrgID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "material not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete material")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"deleted": true})
}

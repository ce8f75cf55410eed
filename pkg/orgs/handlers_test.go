package orgs

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telesis-app/telesis/pkg/auth"
	"github.com/telesis-app/telesis/pkg/httputil"
	"github.com/telesis-app/telesis/pkg/middleware"
	"github.com/telesis-app/telesis/pkg/observability"
	"github.com/telesis-app/telesis/pkg/security"
	"github.com/telesis-app/telesis/pkg/storage/postgres"
)

func newTestRouter(t *testing.T, provider auth.Provider) (*mux.Router, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	secLog := security.NewLogger(nil)
	service := NewPostgresService(postgres.NewConnectionManagerFromDB(db), nil)
	guard := middleware.NewAuthGuard(provider, secLog, nil)

	router := mux.NewRouter()
	NewHandlers(service, secLog, logger).RegisterRoutes(router, guard, nil)
	return router, mock
}

func signedInUser() auth.Provider {
	return &auth.StaticProvider{Ctx: &auth.Context{
		UserID:    "user_1",
		SessionID: "sess_1",
	}}
}

func memberOf(orgID string) auth.Provider {
	return &auth.StaticProvider{Ctx: &auth.Context{
		UserID:    "user_1",
		OrgID:     orgID,
		SessionID: "sess_1",
	}}
}

func doJSON(router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCreateHandler_Success(t *testing.T) {
	router, mock := newTestRouter(t, signedInUser())

	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))

	rr := doJSON(router, "POST", "/api/organizations", `{"clerkOrgId": "org_2abc", "name": "Acme Training"}`)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var envelope httputil.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)

	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, "org_2abc", data["clerkOrgId"])
	assert.Equal(t, "acme-training", data["slug"])
}

func TestCreateHandler_DuplicateConflict(t *testing.T) {
	router, mock := newTestRouter(t, signedInUser())

	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnError(&pq.Error{Code: "23505"})

	rr := doJSON(router, "POST", "/api/organizations", `{"clerkOrgId": "org_2abc", "name": "Acme Training"}`)

	require.Equal(t, http.StatusConflict, rr.Code)

	var envelope httputil.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	assert.False(t, envelope.Success)
	assert.Equal(t, httputil.CodeOrganizationIDConflict, envelope.Code)
}

func TestCreateHandler_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		contains string
	}{
		{"missing name", `{"clerkOrgId": "org_2abc"}`, "name"},
		{"empty clerkOrgId", `{"clerkOrgId": "", "name": "Acme"}`, "clerkOrgId"},
		{"bad slug chars", `{"clerkOrgId": "org_2abc", "name": "Acme", "slug": "Not A Slug"}`, "slug"},
		{"unknown field", `{"clerkOrgId": "org_2abc", "name": "Acme", "plan": "pro"}`, "plan"},
		{"malformed json", `{"clerkOrgId":`, "Invalid JSON format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, signedInUser())

			rr := doJSON(router, "POST", "/api/organizations", tt.body)

			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

			var envelope httputil.Envelope
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
			assert.Equal(t, httputil.CodeValidationFailed, envelope.Code)
			assert.Contains(t, envelope.Error, tt.contains)
		})
	}
}

func TestCreateHandler_Unauthenticated(t *testing.T) {
	router, _ := newTestRouter(t, &auth.StaticProvider{Err: auth.ErrUnauthenticated})

	rr := doJSON(router, "POST", "/api/organizations", `{"clerkOrgId": "org_2abc", "name": "Acme"}`)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
}

func TestCreateHandler_PartialAuthAllowsNoOrg(t *testing.T) {
	// Provisioning the first organization happens before the session carries one.
	router, mock := newTestRouter(t, signedInUser())

	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))

	rr := doJSON(router, "POST", "/api/organizations", `{"clerkOrgId": "org_new", "name": "First Org"}`)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestListHandler(t *testing.T) {
	router, mock := newTestRouter(t, memberOf("org_2abc"))

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("org_2abc").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM organizations").
		WithArgs("org_2abc", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "clerk_org_id", "name", "slug", "coalesce", "created_at", "updated_at"}).
			AddRow("7b8e6a1e-76f4-4f3a-9f1c-2b9f0b6f1a10", "org_2abc", "Acme Training", "acme-training", "", now, now))

	rr := doJSON(router, "GET", "/api/organizations", "")

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var envelope httputil.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)

	meta := envelope.Meta.(map[string]interface{})
	assert.Equal(t, float64(1), meta["total"])
}

func TestListHandler_ScopedToCallerOrg(t *testing.T) {
	// A caller in org_a gets only org_a rows; another tenant's billing
	// identifiers never leave the database.
	router, mock := newTestRouter(t, memberOf("org_a"))

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("org_a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM organizations").
		WithArgs("org_a", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "clerk_org_id", "name", "slug", "coalesce", "created_at", "updated_at"}).
			AddRow("8c9f7b2f-87a5-4a4b-8e2d-3caf1c7f2b21", "org_a", "Alpha", "alpha", "", now, now))

	rr := doJSON(router, "GET", "/api/organizations", "")

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var envelope httputil.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	items := envelope.Data.([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "org_a", items[0].(map[string]interface{})["clerkOrgId"])
	assert.NotContains(t, rr.Body.String(), "org_b")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListHandler_NoOrgSeesEmptyList(t *testing.T) {
	router, mock := newTestRouter(t, signedInUser())

	rr := doJSON(router, "GET", "/api/organizations", "")

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var envelope httputil.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	assert.Empty(t, envelope.Data)
	meta := envelope.Meta.(map[string]interface{})
	assert.Equal(t, float64(0), meta["total"])

	// No expectations were registered; the handler must not touch the database
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListHandler_BadPagination(t *testing.T) {
	router, _ := newTestRouter(t, signedInUser())

	rr := doJSON(router, "GET", "/api/organizations?limit=bogus", "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

package security

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/telesis-app/telesis/pkg/httputil"
)

func newEventsRouter(l *Logger, wrap func(http.Handler) http.Handler) *mux.Router {
	router := mux.NewRouter()
	NewHandlers(l).RegisterRoutes(router, wrap)
	return router
}

func TestListEventsEndpoint(t *testing.T) {
	l := NewLogger(nil)
	l.Log(AuthFailure("bad token", "/api/materials", "GET"))
	l.Log(RateLimitExceeded("user_2", "/api/materials", "POST", "user_2:materials:post"))
	router := newEventsRouter(l, nil)

	t.Run("all events", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/security/events", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200", rr.Code)
		}

		var envelope httputil.Envelope
		if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("Failed to decode envelope: %v", err)
		}
		meta := envelope.Meta.(map[string]interface{})
		if meta["count"] != float64(2) {
			t.Errorf("count = %v, want 2", meta["count"])
		}
	})

	t.Run("filtered by type", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/security/events?type=rate_limit_exceeded", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		var envelope httputil.Envelope
		if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("Failed to decode envelope: %v", err)
		}
		meta := envelope.Meta.(map[string]interface{})
		if meta["count"] != float64(1) {
			t.Errorf("count = %v, want 1", meta["count"])
		}
	})

	t.Run("bad limit rejected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/security/events?limit=abc", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400", rr.Code)
		}
	})
}

func TestStatsEndpoint(t *testing.T) {
	l := NewLogger(nil)
	l.Log(AuthFailure("bad token", "/api/materials", "GET"))
	router := newEventsRouter(l, nil)

	req := httptest.NewRequest("GET", "/api/security/stats?hours=1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rr.Code)
	}

	var envelope httputil.Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	data := envelope.Data.(map[string]interface{})
	if data["total_events"] != float64(1) {
		t.Errorf("total_events = %v, want 1", data["total_events"])
	}
}

func TestEventsEndpointGuarded(t *testing.T) {
	l := NewLogger(nil)
	denied := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteUnauthorized(w)
		})
	}
	router := newEventsRouter(l, denied)

	req := httptest.NewRequest("GET", "/api/security/events", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", rr.Code)
	}
}

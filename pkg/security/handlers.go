package security

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/telesis-app/telesis/pkg/httputil"
)

// Handlers exposes the security event log over the admin API
type Handlers struct {
	logger *Logger
}

// NewHandlers creates security log query handlers
func NewHandlers(logger *Logger) *Handlers {
	return &Handlers{logger: logger}
}

// RegisterRoutes registers security log routes on the router. wrap is the
// full-auth guard; the handlers assume an authenticated admin.
func (h *Handlers) RegisterRoutes(router *mux.Router, wrap func(http.Handler) http.Handler) {
	events := http.Handler(http.HandlerFunc(h.listEvents))
	stats := http.Handler(http.HandlerFunc(h.getStats))
	if wrap != nil {
		events = wrap(events)
		stats = wrap(stats)
	}
	router.Handle("/api/security/events", events).Methods("GET")
	router.Handle("/api/security/stats", stats).Methods("GET")
}

// listEvents handles GET /api/security/events?limit=&level=&type=
func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	level := Level(httputil.ParseQueryString(r, "level", ""))
	eventType := EventType(httputil.ParseQueryString(r, "type", ""))

	events := h.logger.RecentEvents(limit, level, eventType)
	httputil.WriteSuccessMeta(w, events, map[string]int{"count": len(events)})
}

// getStats handles GET /api/security/stats?hours=
func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	hours, err := httputil.ParseQueryInt(r, "hours", 24)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if hours < 1 || hours > 24*30 {
		hours = 24
	}

	stats := h.logger.Statistics(time.Duration(hours) * time.Hour)
	httputil.WriteSuccess(w, stats)
}

package security

import "time"

// EventType is the closed taxonomy of security-relevant actions
type EventType string

const (
	EventAuthSuccess        EventType = "auth_success"
	EventAuthFailure        EventType = "auth_failure"
	EventAccessDenied       EventType = "access_denied"
	EventCrossTenantAttempt EventType = "cross_tenant_attempt"
	EventValidationFailed   EventType = "validation_failed"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventSystemError        EventType = "system_error"
)

// Level is the severity of a security event
type Level string

const (
	LevelInfo      Level = "info"
	LevelWarning   Level = "warning"
	LevelCritical  Level = "critical"
	LevelEmergency Level = "emergency"
)

// Event is a structured, append-only security audit record
type Event struct {
	Type       EventType      `json:"type"`
	Level      Level          `json:"level"`
	Message    string         `json:"message"`
	UserID     string         `json:"user_id,omitempty"`
	OrgID      string         `json:"org_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Endpoint   string         `json:"endpoint,omitempty"`
	Method     string         `json:"method,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Context    map[string]any `json:"context,omitempty"`
	StackTrace string         `json:"stack_trace,omitempty"`
}

// Statistics summarizes events within a trailing window
type Statistics struct {
	TotalEvents  int               `json:"total_events"`
	ByLevel      map[Level]int     `json:"by_level"`
	ByType       map[EventType]int `json:"by_type"`
	TopEndpoints []FrequencyEntry  `json:"top_endpoints"`
	TopUsers     []FrequencyEntry  `json:"top_users"`
	WindowStart  time.Time         `json:"window_start"`
	WindowEnd    time.Time         `json:"window_end"`
}

// FrequencyEntry is one row of a top-N frequency list
type FrequencyEntry struct {
	Identifier string `json:"identifier"`
	Count      int    `json:"count"`
}

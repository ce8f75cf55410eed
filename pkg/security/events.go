package security

// Convenience constructors with fixed type/level pairs. The taxonomy is
// closed: new event shapes get a new constructor here, not ad-hoc Log calls.

// AuthSuccess records a successful authentication
func AuthSuccess(userID, sessionID, endpoint, method string) Event {
	return Event{
		Type:      EventAuthSuccess,
		Level:     LevelInfo,
		Message:   "authentication succeeded",
		UserID:    userID,
		SessionID: sessionID,
		Endpoint:  endpoint,
		Method:    method,
	}
}

// AuthFailure records a failed authentication attempt
func AuthFailure(reason, endpoint, method string) Event {
	return Event{
		Type:     EventAuthFailure,
		Level:    LevelWarning,
		Message:  "authentication failed",
		Endpoint: endpoint,
		Method:   method,
		Context:  map[string]any{"reason": reason},
	}
}

// AccessDenied records an authorization denial
func AccessDenied(userID, orgID, endpoint, method, reason string) Event {
	return Event{
		Type:     EventAccessDenied,
		Level:    LevelWarning,
		Message:  "access denied",
		UserID:   userID,
		OrgID:    orgID,
		Endpoint: endpoint,
		Method:   method,
		Context:  map[string]any{"reason": reason},
	}
}

// CrossTenantAttempt records a request referencing another organization's
// resources. Always critical: a correct client never produces one.
func CrossTenantAttempt(userID, orgID, targetOrgID, endpoint, method string) Event {
	return Event{
		Type:     EventCrossTenantAttempt,
		Level:    LevelCritical,
		Message:  "cross-tenant access attempt",
		UserID:   userID,
		OrgID:    orgID,
		Endpoint: endpoint,
		Method:   method,
		Context:  map[string]any{"target_org_id": targetOrgID},
	}
}

// ValidationFailed records a schema validation rejection
func ValidationFailed(userID, orgID, endpoint, method, detail string) Event {
	return Event{
		Type:     EventValidationFailed,
		Level:    LevelInfo,
		Message:  "request validation failed",
		UserID:   userID,
		OrgID:    orgID,
		Endpoint: endpoint,
		Method:   method,
		Context:  map[string]any{"detail": detail},
	}
}

// RateLimitExceeded records a rate-limited request
func RateLimitExceeded(userID, endpoint, method, identifier string) Event {
	return Event{
		Type:     EventRateLimitExceeded,
		Level:    LevelWarning,
		Message:  "rate limit exceeded",
		UserID:   userID,
		Endpoint: endpoint,
		Method:   method,
		Context:  map[string]any{"identifier": identifier},
	}
}

// SuspiciousActivity records behavior outside normal patterns
func SuspiciousActivity(userID, orgID, endpoint, method, detail string) Event {
	return Event{
		Type:     EventSuspiciousActivity,
		Level:    LevelCritical,
		Message:  "suspicious activity detected",
		UserID:   userID,
		OrgID:    orgID,
		Endpoint: endpoint,
		Method:   method,
		Context:  map[string]any{"detail": detail},
	}
}

// SystemError records an unclassified internal failure
func SystemError(endpoint, method string, err error, stack string) Event {
	e := Event{
		Type:       EventSystemError,
		Level:      LevelCritical,
		Message:    "internal error",
		Endpoint:   endpoint,
		Method:     method,
		StackTrace: stack,
	}
	if err != nil {
		e.Context = map[string]any{"error": err.Error()}
	}
	return e
}

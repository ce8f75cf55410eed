package security

import (
	"testing"
	"time"
)

func TestLogger_FIFOEviction(t *testing.T) {
	l := NewLogger(nil, WithCapacity(3))

	l.Log(Event{Type: EventAuthSuccess, Level: LevelInfo, Message: "first"})
	l.Log(Event{Type: EventAuthSuccess, Level: LevelInfo, Message: "second"})
	l.Log(Event{Type: EventAuthSuccess, Level: LevelInfo, Message: "third"})

	if l.Len() != 3 {
		t.Fatalf("Len = %d, want 3", l.Len())
	}

	l.Log(Event{Type: EventAuthSuccess, Level: LevelInfo, Message: "fourth"})

	if l.Len() != 3 {
		t.Fatalf("Len = %d after eviction, want 3", l.Len())
	}

	events := l.RecentEvents(3, "", "")
	if events[0].Message != "fourth" {
		t.Errorf("Newest event = %q, want fourth", events[0].Message)
	}
	if events[2].Message != "second" {
		t.Errorf("Oldest retained event = %q, want second (first evicted)", events[2].Message)
	}
}

func TestLogger_RecentEvents(t *testing.T) {
	l := NewLogger(nil)

	l.Log(AuthSuccess("user1", "sess1", "/api/materials", "GET"))
	l.Log(AuthFailure("bad token", "/api/materials", "POST"))
	l.Log(CrossTenantAttempt("user2", "org_a", "org_b", "/api/materials", "POST"))
	l.Log(AuthFailure("expired token", "/api/organizations", "GET"))

	t.Run("newest first", func(t *testing.T) {
		events := l.RecentEvents(10, "", "")
		if len(events) != 4 {
			t.Fatalf("Got %d events, want 4", len(events))
		}
		if events[0].Type != EventAuthFailure || events[0].Endpoint != "/api/organizations" {
			t.Errorf("Newest event = %s %s, want auth_failure /api/organizations", events[0].Type, events[0].Endpoint)
		}
	})

	t.Run("limit is respected", func(t *testing.T) {
		if got := len(l.RecentEvents(2, "", "")); got != 2 {
			t.Errorf("Got %d events with limit 2, want 2", got)
		}
	})

	t.Run("filter by type", func(t *testing.T) {
		events := l.RecentEvents(10, "", EventAuthFailure)
		if len(events) != 2 {
			t.Fatalf("Got %d auth_failure events, want 2", len(events))
		}
		for _, e := range events {
			if e.Type != EventAuthFailure {
				t.Errorf("Unexpected event type %s", e.Type)
			}
		}
	})

	t.Run("filter by level", func(t *testing.T) {
		events := l.RecentEvents(10, LevelCritical, "")
		if len(events) != 1 {
			t.Fatalf("Got %d critical events, want 1", len(events))
		}
		if events[0].Type != EventCrossTenantAttempt {
			t.Errorf("Critical event type = %s, want cross_tenant_attempt", events[0].Type)
		}
	})
}

func TestLogger_AlertHook(t *testing.T) {
	var alerted []Event
	l := NewLogger(nil, WithAlertFunc(func(e Event) {
		alerted = append(alerted, e)
	}))

	l.Log(AuthSuccess("user1", "sess1", "/api/materials", "GET"))
	l.Log(AuthFailure("bad token", "/api/materials", "POST"))
	if len(alerted) != 0 {
		t.Fatalf("Alert fired for non-critical events: %d", len(alerted))
	}

	l.Log(SuspiciousActivity("user1", "org_a", "/api/materials", "POST", "impersonation attempt"))
	l.Log(Event{Type: EventSystemError, Level: LevelEmergency, Message: "down"})

	if len(alerted) != 2 {
		t.Errorf("Alert fired %d times, want 2 (critical + emergency)", len(alerted))
	}
}

func TestLogger_EventHook(t *testing.T) {
	count := 0
	l := NewLogger(nil, WithEventHook(func(Event) { count++ }))

	l.Log(AuthSuccess("u", "s", "/x", "GET"))
	l.Log(AuthFailure("r", "/x", "GET"))

	if count != 2 {
		t.Errorf("Event hook fired %d times, want 2", count)
	}
}

func TestLogger_Statistics(t *testing.T) {
	l := NewLogger(nil)

	for i := 0; i < 3; i++ {
		l.Log(AuthFailure("bad token", "/api/materials", "POST"))
	}
	l.Log(AuthSuccess("user_b", "sess", "/api/organizations", "GET"))
	l.Log(AuthSuccess("user_a", "sess", "/api/organizations", "GET"))

	stats := l.Statistics(time.Hour)

	if stats.TotalEvents != 5 {
		t.Errorf("TotalEvents = %d, want 5", stats.TotalEvents)
	}
	if stats.ByLevel[LevelWarning] != 3 {
		t.Errorf("ByLevel[warning] = %d, want 3", stats.ByLevel[LevelWarning])
	}
	if stats.ByType[EventAuthSuccess] != 2 {
		t.Errorf("ByType[auth_success] = %d, want 2", stats.ByType[EventAuthSuccess])
	}

	if len(stats.TopEndpoints) != 2 {
		t.Fatalf("TopEndpoints has %d entries, want 2", len(stats.TopEndpoints))
	}
	if stats.TopEndpoints[0].Identifier != "/api/materials" || stats.TopEndpoints[0].Count != 3 {
		t.Errorf("Top endpoint = %+v, want /api/materials x3", stats.TopEndpoints[0])
	}

	// Equal counts order by identifier ascending
	if len(stats.TopUsers) != 2 {
		t.Fatalf("TopUsers has %d entries, want 2", len(stats.TopUsers))
	}
	if stats.TopUsers[0].Identifier != "user_a" {
		t.Errorf("Tied top user = %q, want user_a (identifier ascending)", stats.TopUsers[0].Identifier)
	}
}

func TestLogger_StatisticsWindow(t *testing.T) {
	l := NewLogger(nil)
	l.Log(AuthSuccess("u", "s", "/x", "GET"))

	stats := l.Statistics(0)
	if stats.TotalEvents != 0 {
		t.Errorf("TotalEvents = %d for zero timeframe, want 0", stats.TotalEvents)
	}
}

func TestLogger_ClearOldEvents(t *testing.T) {
	l := NewLogger(nil)

	l.Log(AuthSuccess("u", "s", "/x", "GET"))
	l.Log(AuthSuccess("u", "s", "/y", "GET"))

	if removed := l.ClearOldEvents(time.Hour); removed != 0 {
		t.Errorf("ClearOldEvents removed %d fresh events, want 0", removed)
	}

	if removed := l.ClearOldEvents(0); removed != 2 {
		t.Errorf("ClearOldEvents removed %d, want 2", removed)
	}
	if l.Len() != 0 {
		t.Errorf("Len = %d after clear, want 0", l.Len())
	}
}

func TestTopN(t *testing.T) {
	counts := map[string]int{
		"a": 1, "b": 5, "c": 3, "d": 5, "e": 2,
	}

	entries := topN(counts, 3)
	if len(entries) != 3 {
		t.Fatalf("Got %d entries, want 3", len(entries))
	}

	// b and d tie at 5; b wins on identifier
	want := []string{"b", "d", "c"}
	for i, w := range want {
		if entries[i].Identifier != w {
			t.Errorf("entries[%d] = %q, want %q", i, entries[i].Identifier, w)
		}
	}
}

package security

import (
	"sort"
	"sync"
	"time"

	"github.com/telesis-app/telesis/pkg/observability"
)

// DefaultCapacity is the bound of the in-memory event buffer. Once full,
// the oldest event is dropped for each new one (FIFO).
const DefaultCapacity = 10000

// AlertFunc is invoked for critical and emergency events. The default is a
// no-op; deployments hook external alerting (PagerDuty, Slack) here.
type AlertFunc func(Event)

// Logger is a bounded in-memory security event log. Events are process-local
// and never persisted across restarts; horizontally scaled deployments see
// per-instance logs only.
//
// Construct with NewLogger and inject; there is no package-level instance.
type Logger struct {
	mu       sync.RWMutex
	events   []Event
	capacity int

	sink    *observability.Logger
	alert   AlertFunc
	onEvent func(Event) // metrics hook
}

// Option configures a Logger
type Option func(*Logger)

// WithCapacity overrides the buffer capacity (tests use small buffers)
func WithCapacity(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithAlertFunc sets the critical/emergency alert hook
func WithAlertFunc(fn AlertFunc) Option {
	return func(l *Logger) { l.alert = fn }
}

// WithEventHook sets a callback invoked for every logged event
// (used to feed Prometheus counters)
func WithEventHook(fn func(Event)) Option {
	return func(l *Logger) { l.onEvent = fn }
}

// NewLogger creates a security event logger routing to the given structured
// log sink.
func NewLogger(sink *observability.Logger, opts ...Option) *Logger {
	l := &Logger{
		capacity: DefaultCapacity,
		sink:     sink,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.events = make([]Event, 0, l.capacity)
	return l
}

// Log stamps the event with the current time and appends it to the buffer,
// evicting the oldest entry when the buffer is full.
func (l *Logger) Log(event Event) {
	event.Timestamp = time.Now().UTC()

	l.mu.Lock()
	if len(l.events) >= l.capacity {
		// FIFO eviction
		copy(l.events, l.events[1:])
		l.events[len(l.events)-1] = event
	} else {
		l.events = append(l.events, event)
	}
	l.mu.Unlock()

	l.route(event)

	if l.onEvent != nil {
		l.onEvent(event)
	}

	if l.alert != nil && (event.Level == LevelCritical || event.Level == LevelEmergency) {
		l.alert(event)
	}
}

// route writes the event to the structured log sink at a level derived from
// the event severity.
func (l *Logger) route(event Event) {
	if l.sink == nil {
		return
	}
	entry := l.sink.WithFields(map[string]interface{}{
		"event_type": string(event.Type),
		"level":      string(event.Level),
		"user_id":    event.UserID,
		"org_id":     event.OrgID,
		"endpoint":   event.Endpoint,
		"method":     event.Method,
	})
	switch event.Level {
	case LevelInfo:
		entry.Info(event.Message)
	case LevelWarning:
		entry.Warn(event.Message)
	default:
		entry.Error(event.Message)
	}
}

// Len returns the current number of buffered events
func (l *Logger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// RecentEvents returns up to limit events, newest first, optionally filtered
// by level and type. Empty filter values match everything.
func (l *Logger) RecentEvents(limit int, level Level, eventType EventType) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Event, 0, limit)
	for i := len(l.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := l.events[i]
		if level != "" && e.Level != level {
			continue
		}
		if eventType != "" && e.Type != eventType {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Statistics aggregates events within the trailing timeframe: counts by level
// and type, and the top-10 endpoints and users by frequency. Ties are broken
// by identifier so the ordering is deterministic.
func (l *Logger) Statistics(timeframe time.Duration) Statistics {
	now := time.Now().UTC()
	cutoff := now.Add(-timeframe)

	stats := Statistics{
		ByLevel:     make(map[Level]int),
		ByType:      make(map[EventType]int),
		WindowStart: cutoff,
		WindowEnd:   now,
	}

	endpoints := make(map[string]int)
	users := make(map[string]int)

	l.mu.RLock()
	for _, e := range l.events {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		stats.TotalEvents++
		stats.ByLevel[e.Level]++
		stats.ByType[e.Type]++
		if e.Endpoint != "" {
			endpoints[e.Endpoint]++
		}
		if e.UserID != "" {
			users[e.UserID]++
		}
	}
	l.mu.RUnlock()

	stats.TopEndpoints = topN(endpoints, 10)
	stats.TopUsers = topN(users, 10)
	return stats
}

// ClearOldEvents drops events older than the cutoff and returns the number
// removed.
func (l *Logger) ClearOldEvents(olderThan time.Duration) int {
	cutoff := time.Now().UTC().Add(-olderThan)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Events are append-ordered, find the first one to keep.
	keep := len(l.events)
	for i, e := range l.events {
		if !e.Timestamp.Before(cutoff) {
			keep = i
			break
		}
	}
	removed := keep
	l.events = append(l.events[:0], l.events[keep:]...)
	return removed
}

// topN returns the n highest-count entries, count descending, identifier
// ascending on equal counts.
func topN(counts map[string]int, n int) []FrequencyEntry {
	entries := make([]FrequencyEntry, 0, len(counts))
	for id, count := range counts {
		entries = append(entries, FrequencyEntry{Identifier: id, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Identifier < entries[j].Identifier
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

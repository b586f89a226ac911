package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/opus-nx/swarm/pkg/metrics"
)

// dropWarnInterval throttles the "subscriber queue full" warning so a
// persistently slow subscriber cannot flood the logs.
const dropWarnInterval = 10 * time.Second

// Bus is the per-session pub/sub hub feeding WebSocket streams.
// All methods are safe for concurrent use.
type Bus struct {
	mu        sync.Mutex
	queueSize int
	sessions  map[string]*sessionState
}

type sessionState struct {
	subs         []*Subscription
	drops        int64
	lastActivity time.Time
	dropWarn     *rate.Limiter
}

// Subscription is one subscriber's bounded event queue. Events arrive
// pre-marshaled; the channel is closed on unsubscribe or session cleanup.
type Subscription struct {
	sessionID string
	ch        chan []byte
}

// Events returns the receive side of the subscription queue.
func (s *Subscription) Events() <-chan []byte {
	return s.ch
}

// SessionID returns the session this subscription belongs to.
func (s *Subscription) SessionID() string {
	return s.sessionID
}

// NewBus creates a Bus with the given per-subscriber queue capacity.
// queueSize <= 0 falls back to DefaultQueueSize.
func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		queueSize: queueSize,
		sessions:  make(map[string]*sessionState),
	}
}

// Subscribe registers a new subscriber queue for a session and stamps
// the session's last-activity time.
func (b *Bus) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		sessionID: sessionID,
		ch:        make(chan []byte, b.queueSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.sessions[sessionID]
	if !ok {
		state = &sessionState{
			dropWarn: rate.NewLimiter(rate.Every(dropWarnInterval), 1),
		}
		b.sessions[sessionID] = state
	}
	state.subs = append(state.subs, sub)
	state.lastActivity = time.Now().UTC()
	return sub
}

// Unsubscribe removes a subscriber and closes its queue. Safe to call
// after CleanupSession already removed the session.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.sessions[sub.sessionID]
	if !ok {
		return
	}
	for i, s := range state.subs {
		if s == sub {
			state.subs = append(state.subs[:i], state.subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}

// Publish marshals the event once and delivers it to every subscriber
// queue for the session without blocking. A full queue drops the event.
// Publishing refreshes the session's last-activity time; a session with
// no subscribers otherwise ignores the event.
func (b *Bus) Publish(sessionID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal swarm event", "session_id", sessionID, "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.sessions[sessionID]
	if !ok {
		return
	}
	state.lastActivity = time.Now().UTC()
	if len(state.subs) == 0 {
		return
	}

	metrics.EventsPublished.Inc()
	for _, sub := range state.subs {
		select {
		case sub.ch <- data:
		default:
			state.drops++
			metrics.EventsDropped.Inc()
			if state.dropWarn.Allow() {
				slog.Warn("Subscriber queue full, dropping events",
					"session_id", sessionID, "total_dropped", state.drops)
			}
		}
	}
}

// Drops returns the number of events dropped for a session so far.
func (b *Bus) Drops(sessionID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := b.sessions[sessionID]; ok {
		return state.drops
	}
	return 0
}

// SubscriberCount returns the number of live subscribers for a session.
func (b *Bus) SubscriberCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := b.sessions[sessionID]; ok {
		return len(state.subs)
	}
	return 0
}

// StaleSessions returns the ids of sessions whose last subscriber
// activity is older than maxAge.
func (b *Bus) StaleSessions(maxAge time.Duration) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()
	var stale []string
	for id, state := range b.sessions {
		if now.Sub(state.lastActivity) > maxAge {
			stale = append(stale, id)
		}
	}
	return stale
}

// CleanupSession removes every subscriber queue and all accounting for
// a session, closing the queues so readers observe the shutdown.
func (b *Bus) CleanupSession(sessionID string) {
	b.mu.Lock()
	state, ok := b.sessions[sessionID]
	if ok {
		delete(b.sessions, sessionID)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	for _, sub := range state.subs {
		close(sub.ch)
	}
	if state.drops > 0 {
		slog.Info("Session event queues cleaned up",
			"session_id", sessionID, "total_dropped", state.drops)
	} else {
		slog.Debug("Session event queues cleaned up", "session_id", sessionID)
	}
}

package session

import (
	"sync"
	"time"

	"voiceagent-platform/internal/calls"
)

// Phase is the explicit conversation phase carried in the session. The turn
// handler sets it deliberately; it is never re-derived by scanning history.
type Phase string

const (
	PhaseInitiating Phase = "initiating"
	PhaseRinging    Phase = "ringing"
	PhaseActive     Phase = "active"
	PhaseFinalizing Phase = "finalizing"
)

// Turn is one half of a conversation exchange.
type Turn struct {
	Role    calls.Role `json:"role"`
	Content string     `json:"content"`
}

// Session is the in-memory mutable record of one in-progress call.
//
// Ownership: a session belongs to the Registry while active. Mutate it only
// while holding the registry lock for its carrier call id; Snapshot() gives
// a safe copy to carry across slow work.
type Session struct {
	CarrierCallID string
	CampaignID    string
	ContactID     string
	Phone         string

	Phase Phase

	// History is append-only for the session's lifetime: user/assistant
	// pairs, even length at rest after every completed turn.
	History []Turn

	// ExtractedData accumulates across turns, last write wins per key.
	ExtractedData map[string]string

	// RePrompts counts consecutive empty-utterance re-prompts.
	RePrompts int

	StartedAt      time.Time
	LastActivityAt time.Time
}

// Snapshot returns a deep copy safe to read outside the id lock.
func (s *Session) Snapshot() Session {
	out := *s
	out.History = make([]Turn, len(s.History))
	copy(out.History, s.History)
	out.ExtractedData = make(map[string]string, len(s.ExtractedData))
	for k, v := range s.ExtractedData {
		out.ExtractedData[k] = v
	}
	return out
}

// Registry is the process-local table of active call sessions, keyed by the
// carrier-assigned call id.
//
// Concurrency contract (what webhook handlers rely on):
// - Put/Get/Remove/ListActive are safe from any goroutine.
// - Lock(id)/Unlock(id) give per-key mutual exclusion: two webhook
//   deliveries for the same call id cannot interleave their
//   read-mutate-store sequences. Distinct ids never contend.
// - Entries are lost on restart; an active call that outlives the process
//   is already orphaned at the carrier too.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*idLock
}

// idLock is a per-id mutex with a count of holders plus waiters. The table
// entry survives for as long as anyone is holding or waiting, so Unlock
// always releases the exact mutex the caller locked, even if the session
// (or nothing at all) lived under the id in between.
type idLock struct {
	mu   sync.Mutex
	refs int
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: map[string]*Session{},
		locks:    map[string]*idLock{},
	}
}

// Lock acquires the per-id mutex, creating it on first use. It may be taken
// for an id that has no session yet (the reconstruction path needs that).
func (r *Registry) Lock(id string) {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &idLock{}
		r.locks[id] = l
	}
	l.refs++
	r.mu.Unlock()
	l.mu.Lock()
}

// Unlock releases the per-id mutex taken by Lock. The last holder or waiter
// to leave drops the table entry.
func (r *Registry) Unlock(id string) {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(r.locks, id)
	}
	r.mu.Unlock()
	l.mu.Unlock()
}

// Put registers a session under its carrier call id. At most one live
// session may exist per id; a second Put for the same id replaces the
// first, which callers prevent by checking Get under the id lock.
func (r *Registry) Put(s *Session) {
	if s == nil || s.CarrierCallID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.CarrierCallID] = s
}

// Get returns the session for id, or nil when absent.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Remove drops the session. Idempotent: removing an absent id is a no-op,
// which is what makes finalization re-entrant. The lock entry is left
// alone: a goroutine already blocked in Lock(id) must still be woken by
// the holder's Unlock, after which it will find no session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// ListActive returns snapshots of all live sessions.
func (r *Registry) ListActive() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep returns the ids of sessions with no activity since the cutoff.
// The idle reaper finalizes them; the registry itself only reports.
func (r *Registry) Sweep(maxIdle time.Duration, now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for id, s := range r.sessions {
		last := s.LastActivityAt
		if last.IsZero() {
			last = s.StartedAt
		}
		if now.Sub(last) > maxIdle {
			out = append(out, id)
		}
	}
	return out
}

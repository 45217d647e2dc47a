package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"pca-viewer/internal/analyzer"
)

// CookieName is the browser cookie carrying the session id.
const CookieName = "pca_session"

// DefaultIdleTTL is how long an untouched session is kept.
const DefaultIdleTTL = 2 * time.Hour

type entry struct {
	ctrl     *Controller
	lastSeen time.Time
}

// Registry hands out one Controller per session id and forgets sessions that
// stay idle longer than the TTL.
type Registry struct {
	client analyzer.Client
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry builds a registry. A non-positive ttl selects DefaultIdleTTL.
func NewRegistry(client analyzer.Client, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &Registry{
		client:   client,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// Get returns the controller for id, creating it when unknown. An empty or
// unparseable id is replaced by a new one; the id actually used is returned.
func (r *Registry) Get(id string) (*Controller, string) {
	if _, err := uuid.Parse(id); err != nil {
		id = NewID()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweepLocked(now)

	e, ok := r.sessions[id]
	if !ok {
		e = &entry{ctrl: NewController(r.client)}
		r.sessions[id] = e
	}
	e.lastSeen = now
	return e.ctrl, id
}

// Len reports how many sessions are live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) sweepLocked(now time.Time) {
	for id, e := range r.sessions {
		if now.Sub(e.lastSeen) > r.ttl {
			delete(r.sessions, id)
		}
	}
}

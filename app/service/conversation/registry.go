package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"shopassist/app/service/dialogue"
)

// entry is one live conversation. busy is set while a turn is in flight;
// only the turn holding it may replace session or touch the transcript.
type entry struct {
	busy         bool
	session      dialogue.Session
	transcript   ChatHistory
	userMessages []string
}

type registry struct {
	mu          sync.Mutex
	entries     map[string]*entry
	historySize int
}

func newRegistry(historySize int) *registry {
	return &registry{
		entries:     make(map[string]*entry),
		historySize: historySize,
	}
}

// acquire marks the session busy, creating it when unknown. An empty id
// gets a fresh one.
func (r *registry) acquire(id string, now time.Time) (string, *entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}

	e, ok := r.entries[id]
	if !ok {
		e = &entry{
			session:    dialogue.NewSession(id, now),
			transcript: newChatHistory(r.historySize),
		}
		r.entries[id] = e
	}

	if e.busy {
		return id, nil, ErrTurnInFlight
	}
	e.busy = true

	return id, e, nil
}

func (r *registry) release(e *entry) {
	r.mu.Lock()
	e.busy = false
	r.mu.Unlock()
}

func (r *registry) commit(e *entry, next dialogue.Session) {
	r.mu.Lock()
	e.session = next
	r.mu.Unlock()
}

func (r *registry) snapshot(id string) (dialogue.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return dialogue.Session{}, false
	}
	return e.session, true
}

func (r *registry) remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ErrSessionNotFound
	}
	if e.busy {
		return ErrTurnInFlight
	}
	delete(r.entries, id)
	return nil
}

// evict drops idle sessions whose last activity is older than ttl.
func (r *registry) evict(now time.Time, ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, e := range r.entries {
		if e.busy || now.Sub(e.session.LastActivity) <= ttl {
			continue
		}
		delete(r.entries, id)
		evicted++
	}
	return evicted
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

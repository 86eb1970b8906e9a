package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"character-chat/internal/llm"
	"character-chat/internal/profile"
	"character-chat/internal/storage"
)

// Registry is the process-wide table of live sessions, one per
// character name. Creation is lazy: the first access for a name loads
// the profile from the store and snapshots it.
type Registry struct {
	profiles profile.Repository
	client   llm.Client
	rec      storage.Recorder

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(profiles profile.Repository, client llm.Client, rec storage.Recorder) *Registry {
	return &Registry{
		profiles: profiles,
		client:   client,
		rec:      rec,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for a character, creating it
// on first access. The registry mutex is held across the profile
// load so concurrent first access for the same name yields exactly
// one session instance.
func (r *Registry) GetOrCreate(name string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[name]; ok {
		return s, nil
	}
	p, ok, err := r.profiles.Get(name)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", name, err)
	}
	if !ok {
		return nil, ErrProfileNotFound
	}
	s := newSession(p, r.client, r.rec)
	r.sessions[name] = s
	return s, nil
}

// Reset discards the live session for a character, if any. The next
// GetOrCreate re-reads the profile store and so picks up any edits
// made since the session was first created. Resetting a name with no
// live session reports ErrProfileNotFound, mirroring the HTTP 404.
func (r *Registry) Reset(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[name]; !ok {
		return ErrProfileNotFound
	}
	delete(r.sessions, name)
	return nil
}

// Names lists characters with a live session, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// SweepIdle discards sessions idle longer than ttl and returns how
// many were dropped. Sessions with a call in flight are skipped.
func (r *Registry) SweepIdle(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-ttl)
	dropped := 0
	for name, s := range r.sessions {
		if !s.IdleSince().Before(cutoff) {
			continue
		}
		if !s.busy.TryLock() {
			continue
		}
		s.busy.Unlock()
		delete(r.sessions, name)
		dropped++
	}
	return dropped
}

// Clear discards all live sessions. Intended for tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]*Session)
}

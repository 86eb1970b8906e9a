package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"character-chat/internal/profile"
)

// memRepo is an in-memory profile store for registry tests.
type memRepo struct {
	mu       sync.Mutex
	profiles map[string]profile.Profile
}

func newMemRepo(profiles ...profile.Profile) *memRepo {
	r := &memRepo{profiles: make(map[string]profile.Profile)}
	for _, p := range profiles {
		r.profiles[p.Name] = p
	}
	return r
}

func (r *memRepo) LoadAll() ([]profile.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]profile.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (r *memRepo) Get(name string) (profile.Profile, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[name]
	return p, ok, nil
}

func (r *memRepo) Upsert(p profile.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Name] = p
	return nil
}

func TestGetOrCreateUnknownProfile(t *testing.T) {
	reg := NewRegistry(newMemRepo(), &stubClient{}, nil)
	if _, err := reg.GetOrCreate("Ghost"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("want ErrProfileNotFound, got %v", err)
	}
}

func TestGetOrCreateReturnsSameInstance(t *testing.T) {
	reg := NewRegistry(newMemRepo(ariaProfile()), &stubClient{}, nil)
	s1, err := reg.GetOrCreate("Aria")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	s2, err := reg.GetOrCreate("Aria")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("same name must yield the same session instance")
	}
}

func TestGetOrCreateConcurrentSingleInstance(t *testing.T) {
	reg := NewRegistry(newMemRepo(ariaProfile()), &stubClient{}, nil)

	const callers = 16
	sessions := make([]*Session, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := reg.GetOrCreate("Aria")
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if sessions[i] != sessions[0] {
			t.Fatalf("caller %d observed a different session instance", i)
		}
	}
	if reg.Len() != 1 {
		t.Fatalf("want exactly one live session, got %d", reg.Len())
	}
}

func TestResetPicksUpProfileEdits(t *testing.T) {
	repo := newMemRepo(ariaProfile())
	reg := NewRegistry(repo, &stubClient{}, nil)

	s, err := reg.GetOrCreate("Aria")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	edited := ariaProfile()
	edited.SystemPrompt = "You are Aria, but grumpier."
	if err := repo.Upsert(edited); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// The live session keeps its snapshot until reset.
	if s.Profile().SystemPrompt != "You are Aria." {
		t.Fatalf("live session must keep its snapshot")
	}

	if err := reg.Reset("Aria"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	fresh, err := reg.GetOrCreate("Aria")
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if fresh == s {
		t.Fatalf("reset must discard the old session")
	}
	if len(fresh.History()) != 0 {
		t.Fatalf("fresh session must have empty history")
	}
	if fresh.Profile().SystemPrompt != "You are Aria, but grumpier." {
		t.Fatalf("fresh session must see the edited profile")
	}
}

func TestResetUnknownName(t *testing.T) {
	reg := NewRegistry(newMemRepo(ariaProfile()), &stubClient{}, nil)
	if err := reg.Reset("Ghost"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("want ErrProfileNotFound, got %v", err)
	}
}

func TestNamesAndClear(t *testing.T) {
	bram := profile.Profile{Name: "Bram", SystemPrompt: "You are Bram."}
	reg := NewRegistry(newMemRepo(ariaProfile(), bram), &stubClient{}, nil)
	if _, err := reg.GetOrCreate("Bram"); err != nil {
		t.Fatalf("bram: %v", err)
	}
	if _, err := reg.GetOrCreate("Aria"); err != nil {
		t.Fatalf("aria: %v", err)
	}
	names := reg.Names()
	if len(names) != 2 || names[0] != "Aria" || names[1] != "Bram" {
		t.Fatalf("unexpected names: %v", names)
	}
	reg.Clear()
	if reg.Len() != 0 {
		t.Fatalf("clear must drop all sessions")
	}
}

func TestSweepIdle(t *testing.T) {
	reg := NewRegistry(newMemRepo(ariaProfile()), &stubClient{}, nil)
	s, err := reg.GetOrCreate("Aria")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s.mu.Lock()
	s.lastActive = time.Now().Add(-3 * time.Hour)
	s.mu.Unlock()

	if dropped := reg.SweepIdle(2 * time.Hour); dropped != 1 {
		t.Fatalf("want 1 dropped, got %d", dropped)
	}
	if reg.Len() != 0 {
		t.Fatalf("swept session still registered")
	}

	// A busy session is never swept.
	s2, err := reg.GetOrCreate("Aria")
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	s2.mu.Lock()
	s2.lastActive = time.Now().Add(-3 * time.Hour)
	s2.mu.Unlock()
	s2.busy.Lock()
	if dropped := reg.SweepIdle(2 * time.Hour); dropped != 0 {
		t.Fatalf("busy session must be skipped, dropped %d", dropped)
	}
	s2.busy.Unlock()
}

package profile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("touch file: %w", err)
	}
	_ = f.Close()
	return &FileRepository{path: path}, nil
}

func (r *FileRepository) LoadAll() ([]Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadUnlocked()
}

func (r *FileRepository) Get(name string) (Profile, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	profiles, err := r.loadUnlocked()
	if err != nil {
		return Profile{}, false, err
	}
	for _, p := range profiles {
		if p.Name == name {
			return p, true, nil
		}
	}
	return Profile{}, false, nil
}

func (r *FileRepository) Upsert(p Profile) error {
	if p.Name == "" {
		return fmt.Errorf("profile name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	profiles, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	updated := false
	for i, existing := range profiles {
		if existing.Name == p.Name {
			profiles[i] = p
			updated = true
			break
		}
	}
	if !updated {
		profiles = append(profiles, p)
	}
	return r.saveUnlocked(profiles)
}

// loadUnlocked tolerates a missing, empty or corrupt file and loads it
// as an empty list, matching the original profiles.json handling.
func (r *FileRepository) loadUnlocked() ([]Profile, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Profile{}, nil
		}
		return nil, fmt.Errorf("open: %w", err)
	}
	defer func(f *os.File) {
		err := f.Close()
		if err != nil {
		}
	}(f)
	var profiles []Profile
	dec := json.NewDecoder(f)
	if err := dec.Decode(&profiles); err != nil {
		if err == io.EOF {
			return []Profile{}, nil
		}
		return []Profile{}, nil
	}
	return profiles, nil
}

func (r *FileRepository) saveUnlocked(profiles []Profile) error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open write: %w", err)
	}
	defer func(f *os.File) {
		err := f.Close()
		if err != nil {
		}
	}(f)
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(profiles)
}

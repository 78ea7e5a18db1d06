package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"questline/core"
)

// Store persists every profile to a single JSON file.
// Suitable for demos and small deployments.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	data map[core.UserID]core.Profile
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: map[core.UserID]core.Profile{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw map[string]core.Profile
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		v.UserID = core.UserID(k)
		s.data[core.UserID(k)] = v
	}
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	raw := make(map[string]core.Profile, len(s.data))
	for k, v := range s.data {
		raw[string(k)] = v
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) GetProfile(_ context.Context, user core.UserID) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data[user]
	if !ok {
		return core.Profile{}, core.ErrProfileNotFound
	}
	return p, nil
}

// SaveProfile replaces the user's snapshot and rewrites the file.
// The in-memory copy is rolled back when the write fails.
func (s *Store) SaveProfile(_ context.Context, profile core.Profile) error {
	if _, err := core.NormalizeUserID(profile.UserID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.data[profile.UserID]
	if profile.Updated.IsZero() {
		profile.Updated = time.Now().UTC()
	}
	s.data[profile.UserID] = profile
	if err := s.persist(); err != nil {
		if had {
			s.data[profile.UserID] = prev
		} else {
			delete(s.data, profile.UserID)
		}
		return err
	}
	return nil
}

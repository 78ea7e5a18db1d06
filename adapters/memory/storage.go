package memory

import (
	"context"
	"sync"
	"time"

	"questline/core"
)

// Store is a concurrent in-memory profile store.
type Store struct {
	users sync.Map // map[core.UserID]*userRecord
	now   func() time.Time
}

type userRecord struct {
	mu      sync.Mutex
	profile core.Profile
}

func New() *Store { return &Store{now: func() time.Time { return time.Now().UTC() }} }

func (s *Store) GetProfile(_ context.Context, user core.UserID) (core.Profile, error) {
	v, ok := s.users.Load(user)
	if !ok {
		return core.Profile{}, core.ErrProfileNotFound
	}
	rec := v.(*userRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.profile, nil
}

// SaveProfile replaces the stored snapshot for profile.UserID.
func (s *Store) SaveProfile(_ context.Context, profile core.Profile) error {
	if _, err := core.NormalizeUserID(profile.UserID); err != nil {
		return err
	}
	v, _ := s.users.LoadOrStore(profile.UserID, &userRecord{})
	rec := v.(*userRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	profile.Updated = s.now()
	rec.profile = profile
	return nil
}

var _ interface {
	GetProfile(context.Context, core.UserID) (core.Profile, error)
	SaveProfile(context.Context, core.Profile) error
} = (*Store)(nil)

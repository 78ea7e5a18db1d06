package engine

import (
	"context"

	"questline/core"
)

// ProfileStore is the external system of record for learner profiles.
// Sessions read it at start and on refresh, and write to it asynchronously.
type ProfileStore interface {
	GetProfile(ctx context.Context, user core.UserID) (core.Profile, error)
	SaveProfile(ctx context.Context, profile core.Profile) error
}

// Applier applies one canonical action atomically.
type Applier interface {
	Apply(ctx context.Context, a core.Action) (core.Outcome, error)
}

// Package router normalizes local calls and pushed transport events into canonical
// engine actions. Pushed events are untrusted: they are decoded and validated here,
// queued in a bounded inbox, and applied one at a time.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"questline/core"
)

// Push event names understood on the external channel.
const (
	EventAchievementUnlocked = "achievement:unlocked"
	EventXPGained            = "xp:gained"
)

// DefaultInboxSize bounds the number of queued push events.
const DefaultInboxSize = 256

var (
	ErrMalformed    = errors.New("malformed event payload")
	ErrUnknownEvent = errors.New("unknown event")
	ErrInboxFull    = errors.New("inbox full")
	ErrClosed       = errors.New("router closed")
)

// Target receives validated actions.
type Target interface {
	Apply(ctx context.Context, a core.Action) (core.Outcome, error)
}

// Stats counts what the router did with its input.
type Stats struct {
	Accepted int64 `json:"accepted"`
	Dropped  int64 `json:"dropped"`
	Applied  int64 `json:"applied"`
	Failed   int64 `json:"failed"`
}

// Router is safe for concurrent use. Deliver may be called from any goroutine;
// Run must be called once to drain the inbox.
type Router struct {
	target Target
	inbox  chan core.Action
	log    *slog.Logger
	onDrop func(reason string)

	accepted atomic.Int64
	dropped  atomic.Int64
	applied  atomic.Int64
	failed   atomic.Int64

	closed    chan struct{}
	closeOnce sync.Once
}

// Option configures a Router.
type Option func(*Router)

// WithInboxSize overrides the inbox bound.
func WithInboxSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.inbox = make(chan core.Action, n)
		}
	}
}

// WithLogger sets the logger used for dropped and failed events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// WithDropHook is called with a short reason whenever a pushed event is dropped.
func WithDropHook(fn func(reason string)) Option { return func(r *Router) { r.onDrop = fn } }

func New(target Target, opts ...Option) *Router {
	if target == nil {
		panic("router.New requires a non-nil target")
	}
	r := &Router{
		target: target,
		inbox:  make(chan core.Action, DefaultInboxSize),
		log:    slog.Default(),
		closed: make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Deliver accepts a pushed event. Malformed, unknown, or overflowing events are
// dropped and reported through the returned error; state is never touched.
func (r *Router) Deliver(name string, payload []byte) error {
	select {
	case <-r.closed:
		return ErrClosed
	default:
	}
	action, err := Decode(name, payload)
	if err != nil {
		r.drop(name, reasonOf(err), err)
		return err
	}
	select {
	case r.inbox <- action:
		r.accepted.Add(1)
		return nil
	default:
		r.drop(name, "inbox_full", ErrInboxFull)
		return ErrInboxFull
	}
}

// Dispatch applies a local action synchronously after the same validation pushed
// events get.
func (r *Router) Dispatch(ctx context.Context, a core.Action) (core.Outcome, error) {
	if err := Validate(a); err != nil {
		return core.Outcome{}, err
	}
	out, err := r.target.Apply(ctx, a)
	if err != nil {
		r.failed.Add(1)
		return out, err
	}
	r.applied.Add(1)
	return out, nil
}

// Run drains the inbox until ctx is cancelled or Close is called.
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.closed:
			return nil
		case a := <-r.inbox:
			if _, err := r.target.Apply(ctx, a); err != nil {
				r.failed.Add(1)
				r.log.Warn("push event not applied", "action", a.Kind(), "error", err)
				continue
			}
			r.applied.Add(1)
		}
	}
}

// Close stops Run and rejects further deliveries. Queued events are discarded.
func (r *Router) Close() {
	r.closeOnce.Do(func() { close(r.closed) })
}

func (r *Router) Stats() Stats {
	return Stats{
		Accepted: r.accepted.Load(),
		Dropped:  r.dropped.Load(),
		Applied:  r.applied.Load(),
		Failed:   r.failed.Load(),
	}
}

func (r *Router) drop(name, reason string, err error) {
	r.dropped.Add(1)
	r.log.Warn("dropping push event", "event", name, "reason", reason, "error", err)
	if r.onDrop != nil {
		r.onDrop(reason)
	}
}

type achievementPayload struct {
	ID *string `json:"id"`
}

type xpPayload struct {
	Amount *float64 `json:"amount"`
	Source *string  `json:"source"`
}

// Decode turns a named push payload into a validated action.
func Decode(name string, payload []byte) (core.Action, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	switch name {
	case EventAchievementUnlocked:
		var p achievementPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if p.ID == nil || strings.TrimSpace(*p.ID) == "" {
			return nil, fmt.Errorf("%w: missing id", ErrMalformed)
		}
		return validated(core.AchievementUnlocked{ID: strings.TrimSpace(*p.ID)})
	case EventXPGained:
		var p xpPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if p.Amount == nil {
			return nil, fmt.Errorf("%w: missing amount", ErrMalformed)
		}
		amt := *p.Amount
		if amt != math.Trunc(amt) || amt >= math.MaxInt64 || amt <= 0 {
			return nil, fmt.Errorf("%w: amount must be a positive integer", ErrMalformed)
		}
		source := core.SourceUnknown
		if p.Source != nil && strings.TrimSpace(*p.Source) != "" {
			source = strings.TrimSpace(*p.Source)
		}
		return validated(core.XPGained{Amount: int64(amt), Source: source})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

func validated(a core.Action) (core.Action, error) {
	if err := Validate(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate performs boundary checks shared by both channels.
func Validate(a core.Action) error {
	switch act := a.(type) {
	case core.XPGained:
		if act.Amount <= 0 {
			return core.ErrInvalidAmount
		}
	case core.CoinsGranted:
		if act.Amount <= 0 {
			return core.ErrInvalidAmount
		}
	case core.AchievementUnlocked:
		if err := core.ValidateAchievementID(act.ID); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	case core.MissionCompleted:
		if strings.TrimSpace(act.MissionID) == "" {
			return fmt.Errorf("%w: missing mission id", ErrMalformed)
		}
		if act.XPReward < 0 || act.CoinReward < 0 {
			return core.ErrInvalidAmount
		}
	case core.StreakAdvanced:
	case nil:
		return fmt.Errorf("%w: nil action", ErrMalformed)
	}
	return nil
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, ErrInboxFull):
		return "inbox_full"
	default:
		return "malformed"
	}
}

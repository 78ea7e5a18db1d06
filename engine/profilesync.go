package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"questline/core"
)

// ProfileSync pushes the latest profile snapshot to the store in the background.
// Only the newest pending snapshot is kept; failures are retried with exponential
// backoff and then logged. Local state is never rolled back.
type ProfileSync struct {
	store      ProfileStore
	log        *slog.Logger
	pending    chan syncJob
	maxRetries uint64
	maxElapsed time.Duration
	onResult   func(core.Profile, error)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	// mu guards the generation counters; settledCh is closed and replaced
	// each time a snapshot settles.
	mu        sync.Mutex
	pushed    uint64
	settled   uint64
	lastErr   error
	settledCh chan struct{}
}

type syncJob struct {
	gen     uint64
	profile core.Profile
}

// SyncOption configures a ProfileSync.
type SyncOption func(*ProfileSync)

// WithSyncRetries bounds the number of retries per snapshot.
func WithSyncRetries(n uint64) SyncOption { return func(p *ProfileSync) { p.maxRetries = n } }

// WithSyncMaxElapsed bounds the total retry time per snapshot.
func WithSyncMaxElapsed(d time.Duration) SyncOption {
	return func(p *ProfileSync) {
		if d > 0 {
			p.maxElapsed = d
		}
	}
}

// WithSyncResult registers a callback invoked after each snapshot settles.
func WithSyncResult(fn func(core.Profile, error)) SyncOption {
	return func(p *ProfileSync) { p.onResult = fn }
}

// WithSyncLogger sets the logger.
func WithSyncLogger(l *slog.Logger) SyncOption {
	return func(p *ProfileSync) {
		if l != nil {
			p.log = l
		}
	}
}

// NewProfileSync starts the background writer. A nil store yields a no-op syncer.
func NewProfileSync(store ProfileStore, opts ...SyncOption) *ProfileSync {
	ctx, cancel := context.WithCancel(context.Background())
	p := &ProfileSync{
		store:      store,
		log:        slog.Default(),
		pending:    make(chan syncJob, 1),
		maxRetries: 5,
		maxElapsed: 30 * time.Second,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		settledCh:  make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	if store == nil {
		close(p.done)
		return p
	}
	go p.run()
	return p
}

// Push schedules profile for writing, replacing any snapshot not yet picked up.
// Pushes after Close are ignored.
func (p *ProfileSync) Push(profile core.Profile) {
	if p.store == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx.Err() != nil {
		return
	}
	p.pushed++
	job := syncJob{gen: p.pushed, profile: profile}
	for {
		select {
		case p.pending <- job:
			return
		default:
		}
		// newest wins: discard the stale pending snapshot and try again
		select {
		case <-p.pending:
		default:
		}
	}
}

// Flush waits until every snapshot pushed so far has settled and returns the
// error of the last one, if its save failed.
func (p *ProfileSync) Flush(ctx context.Context) error {
	p.mu.Lock()
	target := p.pushed
	for p.settled < target {
		wait := p.settledCh
		p.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		p.mu.Lock()
	}
	err := p.lastErr
	p.mu.Unlock()
	return err
}

// Close stops the writer. A snapshot still pending is flushed once without retries.
func (p *ProfileSync) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.cancel()
		p.mu.Unlock()
		<-p.done
		if p.store == nil {
			return
		}
		select {
		case job := <-p.pending:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			p.settle(job, p.store.SaveProfile(ctx, job.profile))
		default:
		}
	})
}

func (p *ProfileSync) run() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.pending:
			p.settle(job, p.save(job.profile))
		}
	}
}

func (p *ProfileSync) save(profile core.Profile) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 50 * time.Millisecond
	exp.MaxElapsedTime = p.maxElapsed
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, p.maxRetries), p.ctx)

	return backoff.Retry(func() error {
		// an attempt in flight at Close still completes; only further retries stop
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := p.store.SaveProfile(ctx, profile)
		if err != nil {
			p.log.Warn("profile sync failed, retrying", "user_id", profile.UserID, "error", err)
		}
		return err
	}, policy)
}

func (p *ProfileSync) settle(job syncJob, err error) {
	profile := job.profile
	if err != nil {
		p.log.Error("profile sync gave up", "user_id", profile.UserID, "error", err)
	} else {
		p.log.Debug("profile synced", "user_id", profile.UserID, "xp", profile.XP, "level", profile.Level)
	}
	if p.onResult != nil {
		p.onResult(profile, err)
	}

	p.mu.Lock()
	if job.gen > p.settled {
		p.settled = job.gen
		p.lastErr = err
	}
	close(p.settledCh)
	p.settledCh = make(chan struct{})
	p.mu.Unlock()
}

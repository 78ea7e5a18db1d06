// Package feed keeps the bounded, newest-first log of user-facing notifications.
package feed

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"questline/core"
)

// DefaultCapacity is the number of entries kept before the oldest is evicted.
const DefaultCapacity = 50

// Feed is safe for concurrent use. Entries are stored newest first.
type Feed struct {
	mu       sync.Mutex
	capacity int
	items    []core.Notification
	now      func() time.Time
}

// Option configures a Feed.
type Option func(*Feed)

// WithCapacity overrides the eviction bound.
func WithCapacity(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.capacity = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) {
		if now != nil {
			f.now = now
		}
	}
}

func New(opts ...Option) *Feed {
	f := &Feed{capacity: DefaultCapacity, now: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(f)
	}
	f.items = make([]core.Notification, 0, f.capacity)
	return f
}

// Append prepends n, filling id and timestamp when empty, and evicts beyond capacity.
// It returns the stored entry and the number of evicted entries.
func (f *Feed) Append(n core.Notification) (core.Notification, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = f.now()
	}
	n.Metadata = copyMetadata(n.Metadata)

	f.items = append(f.items, core.Notification{})
	copy(f.items[1:], f.items)
	f.items[0] = n

	evicted := 0
	if len(f.items) > f.capacity {
		evicted = len(f.items) - f.capacity
		// clear references held by the dropped tail
		for i := f.capacity; i < len(f.items); i++ {
			f.items[i] = core.Notification{}
		}
		f.items = f.items[:f.capacity]
	}
	return n, evicted
}

// MarkRead flags the entry with id as read. Unknown ids are a no-op and return false.
func (f *Feed) MarkRead(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead flags every entry as read and returns how many changed.
func (f *Feed) MarkAllRead() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := 0
	for i := range f.items {
		if !f.items[i].Read {
			f.items[i].Read = true
			changed++
		}
	}
	return changed
}

func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, it := range f.items {
		if !it.Read {
			n++
		}
	}
	return n
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// List returns a copy of the entries, newest first.
func (f *Feed) List() []core.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Notification, len(f.items))
	for i, it := range f.items {
		it.Metadata = copyMetadata(it.Metadata)
		out[i] = it
	}
	return out
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

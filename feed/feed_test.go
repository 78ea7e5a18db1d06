package feed

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questline/core"
)

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	f := New()
	n, evicted := f.Append(core.Notification{Kind: core.KindXPGained, Title: "+10 XP"})
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Timestamp.IsZero())
	assert.Zero(t, evicted)

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	n, _ = f.Append(core.Notification{ID: "given", Timestamp: fixed})
	assert.Equal(t, "given", n.ID)
	assert.Equal(t, fixed, n.Timestamp)
}

func TestNewestFirst(t *testing.T) {
	f := New()
	for i := 0; i < 3; i++ {
		f.Append(core.Notification{ID: fmt.Sprint(i)})
	}
	list := f.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"2", "1", "0"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestBoundedToFiftyEvictsOldest(t *testing.T) {
	f := New()
	for i := 0; i < 50; i++ {
		_, evicted := f.Append(core.Notification{ID: fmt.Sprint(i)})
		require.Zero(t, evicted)
	}
	_, evicted := f.Append(core.Notification{ID: "50"})
	assert.Equal(t, 1, evicted)

	list := f.List()
	require.Len(t, list, DefaultCapacity)
	assert.Equal(t, "50", list[0].ID)
	assert.Equal(t, "1", list[len(list)-1].ID, "entry 0 must be the one evicted")
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	f := New()
	a, _ := f.Append(core.Notification{Title: "a"})
	f.Append(core.Notification{Title: "b"})
	assert.Equal(t, 2, f.UnreadCount())

	assert.True(t, f.MarkRead(a.ID))
	assert.Equal(t, 1, f.UnreadCount())
	assert.True(t, f.MarkRead(a.ID), "marking twice keeps it read")
	assert.Equal(t, 1, f.UnreadCount())

	assert.False(t, f.MarkRead("missing"))
	assert.Equal(t, 1, f.UnreadCount())

	assert.Equal(t, 1, f.MarkAllRead())
	assert.Zero(t, f.UnreadCount())
	assert.Zero(t, f.MarkAllRead())
}

func TestListReturnsCopies(t *testing.T) {
	f := New()
	f.Append(core.Notification{Metadata: map[string]any{"amount": 5}})
	list := f.List()
	list[0].Read = true
	list[0].Metadata["amount"] = 99
	again := f.List()
	assert.False(t, again[0].Read)
	assert.Equal(t, 5, again[0].Metadata["amount"])
}

func TestConcurrentAppends(t *testing.T) {
	f := New(WithCapacity(1000))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				f.Append(core.Notification{})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 500, f.Len())
	assert.Equal(t, 500, f.UnreadCount())
}

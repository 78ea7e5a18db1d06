package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"questline/core"
)

func TestEventBusSync(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	bus.Subscribe(core.EventXPGained, func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), core.NewXPGained("u", "quiz", 1, 1))
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusAsync(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()
	ch := make(chan struct{})
	bus.Subscribe(core.EventXPGained, func(ctx context.Context, e core.Event) { close(ch) })
	bus.Publish(context.Background(), core.NewXPGained("u", "quiz", 1, 1))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestEventBusUnsubscribeAndSubscribeAll(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	var n atomic.Int32
	unsub := bus.SubscribeAll(func(context.Context, core.Event) { n.Add(1) })
	bus.Publish(context.Background(), core.NewLevelUp("u", 1, 2))
	bus.Publish(context.Background(), core.NewStreakChanged("u", 3))
	unsub()
	bus.Publish(context.Background(), core.NewLevelUp("u", 2, 3))
	if n.Load() != 2 {
		t.Fatalf("want 2 got %d", n.Load())
	}
}

func TestEventBusCloseIsIdempotent(t *testing.T) {
	bus := NewEventBus(DispatchAsync, WithWorkers(1), WithQueueSize(1))
	bus.Close()
	bus.Close()
}

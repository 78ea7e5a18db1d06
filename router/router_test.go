package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"questline/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingTarget struct {
	mu      sync.Mutex
	actions []core.Action
	err     error
}

func (r *recordingTarget) Apply(_ context.Context, a core.Action) (core.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return core.Outcome{}, r.err
	}
	r.actions = append(r.actions, a)
	return core.Outcome{}, nil
}

func (r *recordingTarget) seen() []core.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Action(nil), r.actions...)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		payload string
		want    core.Action
		wantErr error
	}{
		{"achievement", EventAchievementUnlocked, `{"id":"quiz_master"}`, core.AchievementUnlocked{ID: "quiz_master"}, nil},
		{"achievement extra fields", EventAchievementUnlocked, `{"id":"x","title":"Mock","xpReward":100}`, core.AchievementUnlocked{ID: "x"}, nil},
		{"achievement missing id", EventAchievementUnlocked, `{"title":"Mock"}`, nil, ErrMalformed},
		{"achievement blank id", EventAchievementUnlocked, `{"id":"  "}`, nil, ErrMalformed},
		{"achievement wrong type", EventAchievementUnlocked, `{"id":42}`, nil, ErrMalformed},
		{"xp with source", EventXPGained, `{"amount":25,"source":"quiz"}`, core.XPGained{Amount: 25, Source: "quiz"}, nil},
		{"xp default source", EventXPGained, `{"amount":10}`, core.XPGained{Amount: 10, Source: core.SourceUnknown}, nil},
		{"xp missing amount", EventXPGained, `{"source":"quiz"}`, nil, ErrMalformed},
		{"xp zero", EventXPGained, `{"amount":0}`, nil, ErrMalformed},
		{"xp negative", EventXPGained, `{"amount":-5}`, nil, ErrMalformed},
		{"xp fractional", EventXPGained, `{"amount":1.5}`, nil, ErrMalformed},
		{"xp string amount", EventXPGained, `{"amount":"10"}`, nil, ErrMalformed},
		{"not json", EventXPGained, `not json`, nil, ErrMalformed},
		{"empty", EventXPGained, ``, nil, ErrMalformed},
		{"unknown event", "leaderboard:update", `{}`, nil, ErrUnknownEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.event, []byte(tt.payload))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeliverDropsMalformedWithoutApplying(t *testing.T) {
	target := &recordingTarget{}
	var reasons []string
	r := New(target, WithDropHook(func(reason string) { reasons = append(reasons, reason) }))
	defer r.Close()

	assert.ErrorIs(t, r.Deliver(EventXPGained, []byte(`{}`)), ErrMalformed)
	assert.ErrorIs(t, r.Deliver("quiz:time_warning", []byte(`{}`)), ErrUnknownEvent)

	assert.Equal(t, int64(2), r.Stats().Dropped)
	assert.Zero(t, r.Stats().Accepted)
	assert.Equal(t, []string{"malformed", "unknown_event"}, reasons)
	assert.Empty(t, target.seen())
}

func TestRunAppliesInOrder(t *testing.T) {
	target := &recordingTarget{}
	r := New(target)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.NoError(t, r.Deliver(EventXPGained, []byte(`{"amount":5}`)))
	require.NoError(t, r.Deliver(EventAchievementUnlocked, []byte(`{"id":"first_steps"}`)))

	require.Eventually(t, func() bool { return len(target.seen()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []core.Action{
		core.XPGained{Amount: 5, Source: core.SourceUnknown},
		core.AchievementUnlocked{ID: "first_steps"},
	}, target.seen())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int64(2), r.Stats().Applied)
}

func TestInboxFullDrops(t *testing.T) {
	target := &recordingTarget{}
	r := New(target, WithInboxSize(1))
	defer r.Close()

	require.NoError(t, r.Deliver(EventXPGained, []byte(`{"amount":1}`)))
	assert.ErrorIs(t, r.Deliver(EventXPGained, []byte(`{"amount":1}`)), ErrInboxFull)
	assert.Equal(t, Stats{Accepted: 1, Dropped: 1}, r.Stats())
}

func TestCloseStopsRunAndRejects(t *testing.T) {
	r := New(&recordingTarget{})
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	r.Close()
	assert.NoError(t, <-done)
	assert.ErrorIs(t, r.Deliver(EventXPGained, []byte(`{"amount":1}`)), ErrClosed)
}

func TestDispatchValidatesLocalActions(t *testing.T) {
	target := &recordingTarget{}
	r := New(target)
	defer r.Close()

	_, err := r.Dispatch(context.Background(), core.XPGained{Amount: 0})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	_, err = r.Dispatch(context.Background(), core.MissionCompleted{})
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Empty(t, target.seen())

	_, err = r.Dispatch(context.Background(), core.StreakAdvanced{Continue: true})
	require.NoError(t, err)
	assert.Len(t, target.seen(), 1)

	target.err = errors.New("boom")
	_, err = r.Dispatch(context.Background(), core.CoinsGranted{Amount: 3, Source: "shop"})
	assert.Error(t, err)
	assert.Equal(t, int64(1), r.Stats().Failed)
}

package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questline/core"
)

func TestSink_OnEventPostsToEndpoints(t *testing.T) {
	var hits int32
	var got core.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_ = r.Body.Close()
	}))
	defer srv.Close()

	sink := New([]string{srv.URL, srv.URL})
	sink.OnEvent(core.NewLevelUp("u1", 1, 2))

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, core.EventLevelUp, got.Type)
	assert.Equal(t, int64(2), got.Level)
}

func TestSink_FiltersEventTypes(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	sink := New([]string{srv.URL}, WithEventTypes(core.EventAchievementUnlocked))
	sink.OnEvent(core.NewXPGained("u1", "quiz", 5, 5))
	sink.OnEvent(core.NewAchievementUnlocked("u1", "first_steps"))

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestSink_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	sink := New([]string{srv.URL}, WithRetries(3))
	require.NoError(t, sink.Send(context.Background(), core.NewStreakChanged("u1", 3)))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestSink_ClientErrorsArePermanent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sink := New([]string{srv.URL}, WithRetries(3))
	err := sink.Send(context.Background(), core.NewStreakChanged("u1", 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestSink_NoEndpoints(t *testing.T) {
	assert.NoError(t, New(nil).Send(context.Background(), core.NewLevelUp("u", 1, 2)))
}

package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/warden/internal/eventlog"
	"github.com/rzbill/warden/internal/intruder"
	"github.com/rzbill/warden/pkg/log"
)

var lockout = intruder.Lockout{
	Dimension: intruder.DimensionAddress,
	Key:       "10.1.2.3",
	Attempts:  20,
	Age:       90 * time.Second,
	At:        time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
}

type eventSink struct {
	mu     sync.Mutex
	events []eventlog.LogEvent
}

func (s *eventSink) WriteEvent(e eventlog.LogEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

type failing struct{ calls int }

func (f *failing) NotifyLockout(context.Context, intruder.Lockout) error {
	f.calls++
	return errors.New("nope")
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLogger(log.WithOutput(log.NewWriterOutput(&buf)))
	require.NoError(t, NewLogNotifier(logger).NotifyLockout(context.Background(), lockout))
	out := buf.String()
	assert.Contains(t, out, `"dimension":"address"`)
	assert.Contains(t, out, `"key":"10.1.2.3"`)
	assert.Contains(t, out, `"component":"alert"`)
	assert.Contains(t, out, `"age":"1m30s"`)
}

func TestEventNotifier(t *testing.T) {
	sink := &eventSink{}
	n := NewEventNotifier(sink)
	require.NoError(t, n.NotifyLockout(context.Background(), lockout))
	userLock := lockout
	userLock.Dimension = intruder.DimensionUser
	userLock.Key = "alice"
	require.NoError(t, n.NotifyLockout(context.Background(), userLock))

	require.Len(t, sink.events, 2)
	assert.Equal(t, eventlog.LevelWarn, sink.events[0].Level)
	assert.Equal(t, Topic, sink.events[0].Topic)
	assert.Equal(t, "10.1.2.3", sink.events[0].Source)
	assert.Empty(t, sink.events[0].Actor)
	assert.Equal(t, "alice", sink.events[1].Actor)
	assert.Equal(t, "user alice locked out after 20 failed attempts in 1m30s", sink.events[1].Message)
}

func TestMultiJoinsErrors(t *testing.T) {
	sink := &eventSink{}
	f := &failing{}
	err := Multi{f, nil, NewEventNotifier(sink)}.NotifyLockout(context.Background(), lockout)
	require.Error(t, err)
	assert.Equal(t, 1, f.calls)
	assert.Len(t, sink.events, 1)
	assert.NoError(t, Multi{}.NotifyLockout(context.Background(), lockout))
}

func TestWebhookNotifierPosts(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Headers: map[string]string{"X-Token": "secret"}})
	require.NoError(t, n.NotifyLockout(context.Background(), lockout))
	assert.Equal(t, "intruder.lockout", got.Type)
	assert.Equal(t, "address", got.Dimension)
	assert.Equal(t, "10.1.2.3", got.Key)
	assert.Equal(t, uint32(20), got.Attempts)
	assert.Equal(t, int64(90000), got.AgeMs)
	assert.True(t, got.At.Equal(lockout.At))
}

func TestWebhookBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL, MaxFailures: 2, BreakerTimeout: time.Minute})
	for rep := 0; rep < 2; rep++ {
		err := n.NotifyLockout(context.Background(), lockout)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	}
	assert.Equal(t, gobreaker.StateOpen, n.State())

	err := n.NotifyLockout(context.Background(), lockout)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), hits.Load())
}

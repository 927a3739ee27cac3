package intruder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/warden/internal/localdb"
	pebblestore "github.com/rzbill/warden/internal/storage/pebble"
	"github.com/rzbill/warden/pkg/log"
)

var epoch = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func testSettings() Settings {
	s := DefaultSettings()
	s.User = Policy{ResetDuration: 60 * time.Second, MaxAttempts: 3}
	s.Address = Policy{ResetDuration: 60 * time.Second, MaxAttempts: 5}
	s.MaxRecordAge = 10 * time.Minute
	s.CloseTimeout = 2 * time.Second
	return s
}

func newTestStore(t *testing.T) *localdb.Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return localdb.New(db)
}

func newTestService(t *testing.T, store Store, settings Settings, clock clockwork.Clock, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{
		WithSettings(settings),
		WithClock(clock),
		WithLogger(log.NewLogger(log.WithOutput(log.NewNullOutput()))),
	}, opts...)
	svc := New(store, opts...)
	require.NoError(t, svc.Open(context.Background()))
	require.Eventually(t, func() bool { return svc.Health().StartupScanDone }, 5*time.Second, time.Millisecond)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

type session struct{ attempts int }

func (s *session) IncrementIntruderAttempts() { s.attempts++ }

type recordingNotifier struct {
	mu       sync.Mutex
	lockouts []Lockout
	err      error
}

func (n *recordingNotifier) NotifyLockout(_ context.Context, l Lockout) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lockouts = append(n.lockouts, l)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.lockouts)
}

// flakyStore fails reads and writes while broken is set.
type flakyStore struct {
	*localdb.Store
	broken atomic.Bool
}

var errDisk = errors.New("disk on fire")

func (f *flakyStore) Get(table localdb.Table, key string) ([]byte, bool, error) {
	if f.broken.Load() {
		return nil, false, localdb.Wrap("get", table, errDisk)
	}
	return f.Store.Get(table, key)
}

func (f *flakyStore) Put(ctx context.Context, table localdb.Table, key string, value []byte) error {
	if f.broken.Load() {
		return localdb.Wrap("put", table, errDisk)
	}
	return f.Store.Put(ctx, table, key, value)
}

func TestRecordRoundTrip(t *testing.T) {
	want := Record{Count: 7, Last: epoch.Add(1234 * time.Millisecond), Alerted: true}
	b, err := encodeRecord(want)
	require.NoError(t, err)
	got, err := decodeRecord(b)
	require.NoError(t, err)
	assert.Equal(t, want.Count, got.Count)
	assert.Equal(t, want.Alerted, got.Alerted)
	assert.True(t, want.Last.Equal(got.Last))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "OPEN", StatusOpen.String())
	assert.Equal(t, "CLOSED", StatusClosed.String())
	assert.Equal(t, "UNKNOWN", Status(42).String())
	assert.Equal(t, "UNKNOWN", Status(-1).String())
}

func TestIsLockedBoundary(t *testing.T) {
	p := Policy{ResetDuration: 60 * time.Second, MaxAttempts: 3}
	rec := Record{Count: 3, Last: epoch}

	assert.True(t, IsLocked(rec, p, epoch))
	assert.True(t, IsLocked(rec, p, epoch.Add(60*time.Second-time.Millisecond)))
	assert.False(t, IsLocked(rec, p, epoch.Add(60*time.Second)))
	assert.False(t, IsLocked(Record{Count: 2, Last: epoch}, p, epoch))
	assert.False(t, IsLocked(rec, Policy{}, epoch))
	// clock skew backwards counts as age zero
	assert.True(t, IsLocked(rec, p, epoch.Add(-time.Hour)))
}

func TestLockoutThresholdAndReset(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	svc := newTestService(t, newTestStore(t), testSettings(), clock)
	sess := &session{}

	svc.RecordFailedAttempt(ctx, sess, "alice", "")
	require.NoError(t, svc.CheckUsernameLocked(ctx, "alice"))
	clock.Advance(30 * time.Second)
	svc.RecordFailedAttempt(ctx, sess, "alice", "")
	clock.Advance(29 * time.Second)
	svc.RecordFailedAttempt(ctx, sess, "alice", "")

	err := svc.CheckUsernameLocked(ctx, "alice")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockedOut))
	var lo *LockedOutError
	require.True(t, errors.As(err, &lo))
	assert.Equal(t, "ERROR_INTRUDER_USER", lo.Code)
	assert.Equal(t, uint32(3), lo.Attempts)
	assert.Equal(t, 3, sess.attempts)

	clock.Advance(61 * time.Second)
	require.NoError(t, svc.CheckUsernameLocked(ctx, "alice"))
	svc.RecordFailedAttempt(ctx, sess, "alice", "")
	rec, found, err := svc.Lookup(ctx, DimensionUser, "alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint32(1), rec.Count)
	assert.False(t, rec.Alerted)
}

func TestLockExpiresAtExactResetDuration(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	svc := newTestService(t, newTestStore(t), testSettings(), clock)

	for rep := 0; rep < 3; rep++ {
		svc.RecordFailedAttempt(ctx, nil, "bob", "")
	}
	clock.Advance(60*time.Second - time.Millisecond)
	require.Error(t, svc.CheckUsernameLocked(ctx, "bob"))
	clock.Advance(time.Millisecond)
	require.NoError(t, svc.CheckUsernameLocked(ctx, "bob"))

	svc.RecordFailedAttempt(ctx, nil, "bob", "")
	rec, _, err := svc.Lookup(ctx, DimensionUser, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), rec.Count)
}

func TestDimensionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	svc := newTestService(t, newTestStore(t), testSettings(), clock)

	for rep := 0; rep < 3; rep++ {
		svc.RecordFailedAttempt(ctx, nil, "carol", "10.0.0.1")
	}
	require.Error(t, svc.CheckUsernameLocked(ctx, "carol"))
	require.NoError(t, svc.CheckAddressLocked(ctx, "10.0.0.1"))
	require.NoError(t, svc.CheckUsernameLocked(ctx, "dave"))

	for rep := 0; rep < 2; rep++ {
		svc.RecordFailedAttempt(ctx, nil, "dave", "10.0.0.1")
	}
	err := svc.CheckAddressLocked(ctx, "10.0.0.1")
	var lo *LockedOutError
	require.True(t, errors.As(err, &lo))
	assert.Equal(t, DimensionAddress, lo.Dimension)
	assert.Equal(t, "ERROR_INTRUDER_ADDRESS", lo.Code)
	require.NoError(t, svc.CheckUsernameLocked(ctx, "dave"))

	assert.Equal(t, int64(1), svc.LockedCount(DimensionUser))
	assert.Equal(t, int64(1), svc.LockedCount(DimensionAddress))
}

func TestDisabledDimensionIsNotTracked(t *testing.T) {
	ctx := context.Background()
	settings := testSettings()
	settings.Address = Policy{}
	store := newTestStore(t)
	svc := newTestService(t, store, settings, clockwork.NewFakeClockAt(epoch))

	for rep := 0; rep < 10; rep++ {
		svc.RecordFailedAttempt(ctx, nil, "", "10.0.0.9")
	}
	require.NoError(t, svc.CheckAddressLocked(ctx, "10.0.0.9"))
	n, err := store.Size(localdb.TableIntruderAddress)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSuccessfulAttemptIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestService(t, store, testSettings(), clockwork.NewFakeClockAt(epoch))

	svc.RecordSuccessfulAttempt(ctx, "erin")
	_, found, err := svc.Lookup(ctx, DimensionUser, "erin")
	require.NoError(t, err)
	assert.False(t, found)

	for rep := 0; rep < 3; rep++ {
		svc.RecordFailedAttempt(ctx, nil, "erin", "10.0.0.2")
	}
	require.Equal(t, int64(1), svc.LockedCount(DimensionUser))

	svc.RecordSuccessfulAttempt(ctx, "erin")
	svc.RecordSuccessfulAttempt(ctx, "erin")
	require.NoError(t, svc.CheckUsernameLocked(ctx, "erin"))
	assert.Equal(t, int64(0), svc.LockedCount(DimensionUser))

	svc.RecordSuccessfulAddress(ctx, "10.0.0.2")
	_, found, err = svc.Lookup(ctx, DimensionAddress, "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOneAlertPerLockEpisode(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	notifier := &recordingNotifier{}
	svc := newTestService(t, newTestStore(t), testSettings(), clock, WithNotifier(notifier))

	for rep := 0; rep < 6; rep++ {
		svc.RecordFailedAttempt(ctx, nil, "frank", "")
	}
	require.Eventually(t, func() bool { return notifier.count() == 1 }, 2*time.Second, time.Millisecond)

	clock.Advance(2 * time.Minute)
	for rep := 0; rep < 3; rep++ {
		svc.RecordFailedAttempt(ctx, nil, "frank", "")
	}
	require.Eventually(t, func() bool { return notifier.count() == 2 }, 2*time.Second, time.Millisecond)

	require.NoError(t, svc.Close())
	assert.Equal(t, 2, notifier.count())
	l := notifier.lockouts[1]
	assert.Equal(t, DimensionUser, l.Dimension)
	assert.Equal(t, "frank", l.Key)
	assert.Equal(t, uint32(3), l.Attempts)
	assert.True(t, l.At.Equal(epoch.Add(2*time.Minute)))
}

func TestLockoutAgeSpansEpisode(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	notifier := &recordingNotifier{}
	svc := newTestService(t, newTestStore(t), testSettings(), clock, WithNotifier(notifier))

	for i := 0; i < 3; i++ {
		if i > 0 {
			clock.Advance(15 * time.Second)
		}
		svc.RecordFailedAttempt(ctx, nil, "alice", "")
	}
	require.Eventually(t, func() bool { return notifier.count() == 1 }, 2*time.Second, time.Millisecond)
	require.NoError(t, svc.Close())

	l := notifier.lockouts[0]
	assert.Equal(t, uint32(3), l.Attempts)
	assert.Equal(t, 30*time.Second, l.Age)

	rec, found, err := svc.Lookup(ctx, DimensionUser, "alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, rec.First.Equal(epoch))
	assert.True(t, rec.Last.Equal(epoch.Add(30*time.Second)))
}

func TestEpisodeAgeRestartsAfterStaleRecord(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	notifier := &recordingNotifier{}
	svc := newTestService(t, newTestStore(t), testSettings(), clock, WithNotifier(notifier))

	svc.RecordFailedAttempt(ctx, nil, "ivy", "")
	clock.Advance(5 * time.Minute)
	for rep := 0; rep < 3; rep++ {
		svc.RecordFailedAttempt(ctx, nil, "ivy", "")
		clock.Advance(time.Second)
	}
	require.Eventually(t, func() bool { return notifier.count() == 1 }, 2*time.Second, time.Millisecond)
	require.NoError(t, svc.Close())
	assert.Equal(t, 2*time.Second, notifier.lockouts[0].Age)
}

func TestCloseWhileAttemptsArrive(t *testing.T) {
	ctx := context.Background()
	settings := testSettings()
	settings.User = Policy{ResetDuration: time.Minute, MaxAttempts: 1}
	store := newTestStore(t)

	for round := 0; round < 50; round++ {
		notifier := &recordingNotifier{}
		svc := New(store,
			WithSettings(settings),
			WithLogger(log.NewLogger(log.WithOutput(log.NewNullOutput()))),
			WithNotifier(notifier))
		require.NoError(t, svc.Open(ctx))

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			g := g
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					svc.RecordFailedAttempt(ctx, nil, fmt.Sprintf("r%d-g%d-%d", round, g, i), "")
				}
			}()
		}
		require.NoError(t, svc.Close())
		wg.Wait()

		// alerts dispatched before close have all been delivered
		delivered := notifier.count()
		time.Sleep(time.Millisecond)
		assert.Equal(t, delivered, notifier.count())
		assert.Equal(t, StatusClosed, svc.Status())
	}
}

func TestAlertFailureDoesNotAffectLockout(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	svc := newTestService(t, newTestStore(t), testSettings(), clockwork.NewFakeClockAt(epoch), WithNotifier(notifier))

	for rep := 0; rep < 3; rep++ {
		svc.RecordFailedAttempt(ctx, nil, "gina", "")
	}
	require.Error(t, svc.CheckUsernameLocked(ctx, "gina"))
	require.Eventually(t, func() bool { return svc.Health().AlertFailures == 1 }, 2*time.Second, time.Millisecond)
}

func TestStorageFailureFailsOpen(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: newTestStore(t)}
	svc := newTestService(t, store, testSettings(), clockwork.NewFakeClockAt(epoch))

	for rep := 0; rep < 3; rep++ {
		svc.RecordFailedAttempt(ctx, nil, "hank", "")
	}
	require.Error(t, svc.CheckUsernameLocked(ctx, "hank"))

	store.broken.Store(true)
	require.NoError(t, svc.CheckUsernameLocked(ctx, "hank"))
	svc.RecordFailedAttempt(ctx, nil, "hank", "")

	h := svc.Health()
	assert.Equal(t, int64(2), h.StorageErrors)
	assert.Contains(t, h.LastStorageError, "disk on fire")
	assert.False(t, h.Healthy())

	store.broken.Store(false)
	require.Error(t, svc.CheckUsernameLocked(ctx, "hank"))
}

func TestSweepRemovesOldRecords(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	store := newTestStore(t)
	svc := newTestService(t, store, testSettings(), clock)

	svc.RecordFailedAttempt(ctx, nil, "ivan", "10.0.0.3")
	clock.Advance(9 * time.Minute)
	for rep := 0; rep < 3; rep++ {
		svc.RecordFailedAttempt(ctx, nil, "judy", "")
	}
	clock.Advance(2 * time.Minute)

	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, found, err := svc.Lookup(ctx, DimensionUser, "ivan")
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = svc.Lookup(ctx, DimensionUser, "judy")
	require.NoError(t, err)
	assert.True(t, found)
	// judy's window has closed, so the sweep recomputes the gauge to zero
	assert.Equal(t, int64(0), svc.LockedCount(DimensionUser))

	h := svc.Health()
	assert.Equal(t, int64(2), h.RecordsCleaned)
	assert.True(t, h.LastSweep.Equal(epoch.Add(11*time.Minute)))
}

func TestCleanerRunsAfterThreshold(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	settings := testSettings()
	settings.CleanupThreshold = 5
	store := newTestStore(t)
	svc := newTestService(t, store, settings, clock)

	svc.RecordFailedAttempt(ctx, nil, "kim", "")
	clock.Advance(time.Hour)
	for rep := 0; rep < 4; rep++ {
		require.NoError(t, svc.CheckUsernameLocked(ctx, "nobody"))
	}
	require.Eventually(t, func() bool {
		n, err := store.Size(localdb.TableIntruderUser)
		return err == nil && n == 0
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), svc.Health().RecordsCleaned)
}

func TestStartupScanRestoresLockedCount(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	store := newTestStore(t)

	first := New(store, WithSettings(testSettings()), WithClock(clock),
		WithLogger(log.NewLogger(log.WithOutput(log.NewNullOutput()))))
	require.NoError(t, first.Open(ctx))
	for rep := 0; rep < 3; rep++ {
		first.RecordFailedAttempt(ctx, nil, "leo", "")
	}
	first.RecordFailedAttempt(ctx, nil, "mia", "")
	require.NoError(t, first.Close())

	second := newTestService(t, store, testSettings(), clock)
	assert.Equal(t, int64(1), second.LockedCount(DimensionUser))
	require.Error(t, second.CheckUsernameLocked(ctx, "leo"))
}

func TestClearAndClearAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestService(t, store, testSettings(), clockwork.NewFakeClockAt(epoch))

	for rep := 0; rep < 5; rep++ {
		svc.RecordFailedAttempt(ctx, nil, "nina", "10.0.0.4")
	}
	require.Error(t, svc.CheckAddressLocked(ctx, "10.0.0.4"))

	require.NoError(t, svc.Clear(ctx, DimensionAddress, "10.0.0.4"))
	require.NoError(t, svc.CheckAddressLocked(ctx, "10.0.0.4"))
	assert.Equal(t, int64(0), svc.LockedCount(DimensionAddress))
	require.Error(t, svc.CheckUsernameLocked(ctx, "nina"))

	require.NoError(t, svc.ClearAll(ctx))
	require.NoError(t, svc.CheckUsernameLocked(ctx, "nina"))
	assert.Equal(t, int64(0), svc.LockedCount(DimensionUser))
	n, err := store.Size(localdb.TableIntruderUser)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClosedServiceIgnoresCalls(t *testing.T) {
	ctx := context.Background()
	svc := New(newTestStore(t), WithSettings(testSettings()))
	// not open yet
	svc.RecordFailedAttempt(ctx, nil, "omar", "")
	require.NoError(t, svc.CheckUsernameLocked(ctx, "omar"))

	require.NoError(t, svc.Open(ctx))
	require.Error(t, svc.Open(ctx))
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
	assert.Equal(t, StatusClosed, svc.Status())
}

func TestParseDimension(t *testing.T) {
	d, err := ParseDimension("Username")
	require.NoError(t, err)
	assert.Equal(t, DimensionUser, d)
	d, err = ParseDimension("addr")
	require.NoError(t, err)
	assert.Equal(t, DimensionAddress, d)
	_, err = ParseDimension("device")
	assert.Error(t, err)
}

func TestSettingsNormalize(t *testing.T) {
	s := Settings{User: Policy{ResetDuration: 48 * time.Hour, MaxAttempts: 3}}.normalize()
	assert.Equal(t, 48*time.Hour, s.MaxRecordAge)
	assert.Equal(t, 1000, s.CleanupThreshold)
	assert.False(t, s.Address.Enabled())
}

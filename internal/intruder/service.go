package intruder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/rzbill/warden/internal/localdb"
	"github.com/rzbill/warden/internal/stats"
	"github.com/rzbill/warden/pkg/log"
)

// Status is the service lifecycle state.
type Status int32

const (
	StatusNew Status = iota
	StatusOpening
	StatusOpen
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusOpening:
		return "OPENING"
	case StatusOpen:
		return "OPEN"
	case StatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Store is the subset of localdb.Store the service needs.
type Store interface {
	Get(table localdb.Table, key string) ([]byte, bool, error)
	Put(ctx context.Context, table localdb.Table, key string, value []byte) error
	Remove(ctx context.Context, table localdb.Table, key string) error
	RemoveKeys(ctx context.Context, table localdb.Table, keys []string) error
	Iterator(table localdb.Table) (*localdb.Iterator, error)
	Truncate(ctx context.Context, table localdb.Table) error
}

// Session is the caller's login session; its failed-attempt counter is
// bumped on every recorded failure.
type Session interface {
	IncrementIntruderAttempts()
}

// Lockout describes a key that just became locked. Age is the time since the
// first attempt of the episode.
type Lockout struct {
	Dimension Dimension     `json:"dimension"`
	Key       string        `json:"key"`
	Attempts  uint32        `json:"attempts"`
	Age       time.Duration `json:"age"`
	At        time.Time     `json:"at"`
}

// Notifier receives one notification per lock episode. Failures are logged
// and never affect the lockout decision.
type Notifier interface {
	NotifyLockout(ctx context.Context, l Lockout) error
}

// Option configures a Service.
type Option func(*Service)

// WithSettings sets the policies and tuning. Settings are normalised by New.
func WithSettings(s Settings) Option { return func(svc *Service) { svc.settings = s } }

// WithClock sets the time source.
func WithClock(c clockwork.Clock) Option { return func(svc *Service) { svc.clock = c } }

// WithLogger sets the service logger. It must not feed back into the
// intruder service.
func WithLogger(l log.Logger) Option { return func(svc *Service) { svc.logger = l } }

// WithStats sets the statistics sink. Defaults to stats.Noop.
func WithStats(sink stats.Sink) Option { return func(svc *Service) { svc.stats = sink } }

// WithNotifier sets the lockout alert sink. Without one no alerts are sent.
func WithNotifier(n Notifier) Option { return func(svc *Service) { svc.notifier = n } }

// Service is the intruder lockout service.
type Service struct {
	store    Store
	settings Settings
	clock    clockwork.Clock
	logger   log.Logger
	stats    stats.Sink
	notifier Notifier

	status atomic.Int32
	// one lock per dimension serialises read-modify-write on its table
	locks  [2]sync.Mutex
	locked [2]atomic.Int64

	activity atomic.Int64
	cleanCh  chan struct{}
	stop     chan struct{}
	workers  sync.WaitGroup

	// alertMu orders alerts.Add against Close's alerts.Wait
	alertMu      sync.Mutex
	alertsClosed bool
	alerts       sync.WaitGroup

	closeOnce     sync.Once
	scanDone      atomic.Bool
	storageErrors atomic.Int64
	alertFailures atomic.Int64
	cleaned       atomic.Int64
	lastSweep     atomic.Int64
	lastErr       atomic.Pointer[string]
	storageWarn   rate.Sometimes
}

// New builds a service over store. Call Open to start it.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		settings:    DefaultSettings(),
		clock:       clockwork.NewRealClock(),
		stats:       stats.Noop{},
		cleanCh:     make(chan struct{}, 1),
		stop:        make(chan struct{}),
		storageWarn: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	s.settings = s.settings.normalize()
	if s.logger == nil {
		s.logger = log.NewLogger(log.WithFormatter(&log.TextFormatter{}))
	}
	s.logger = s.logger.WithComponent("intruder")
	return s
}

// Status returns the lifecycle state.
func (s *Service) Status() Status { return Status(s.status.Load()) }

// Settings returns the normalised settings.
func (s *Service) Settings() Settings { return s.settings }

func (s *Service) open() bool { return s.Status() == StatusOpen }

// Open starts the startup scan and the cleaner.
func (s *Service) Open(ctx context.Context) error {
	if !s.status.CompareAndSwap(int32(StatusNew), int32(StatusOpening)) {
		return fmt.Errorf("intruder: open in state %s", s.Status())
	}
	s.workers.Add(2)
	go s.startupScan()
	go s.cleaner()
	s.status.Store(int32(StatusOpen))
	s.logger.Info("intruder lockout open",
		log.Bool("userTracking", s.settings.User.Enabled()),
		log.Bool("addressTracking", s.settings.Address.Enabled()))
	return nil
}

// RecordFailedAttempt records one failed login for username and address.
// Either may be empty. Tracking failures are logged and swallowed.
func (s *Service) RecordFailedAttempt(ctx context.Context, sess Session, username, address string) {
	if !s.open() {
		return
	}
	if sess != nil {
		sess.IncrementIntruderAttempts()
	}
	s.stats.Increment(stats.FailedLogins)
	s.stats.UpdateEventRate(stats.RateIntruderAttempts)

	if address != "" && s.settings.Address.Enabled() {
		s.recordAttempt(ctx, DimensionAddress, address)
	}
	if username != "" && s.settings.User.Enabled() {
		s.recordAttempt(ctx, DimensionUser, username)
	}
	s.tick()
}

func (s *Service) recordAttempt(ctx context.Context, dim Dimension, key string) {
	policy := s.settings.policy(dim)

	s.locks[dim].Lock()
	defer s.locks[dim].Unlock()

	now := s.clock.Now()
	rec, found, err := s.load(dim, key)
	if err != nil {
		s.storageFailure("read", dim, err)
		return
	}
	if !found || rec.stale(policy, now) {
		rec = Record{First: now}
	}
	if rec.First.IsZero() {
		rec.First = rec.Last
	}
	rec.Count++
	rec.Last = now

	fire := IsLocked(rec, policy, now) && !rec.Alerted
	if fire {
		rec.Alerted = true
	}
	if err := s.save(ctx, dim, key, rec); err != nil {
		s.storageFailure("write", dim, err)
		return
	}
	if !fire {
		return
	}

	s.locked[dim].Add(1)
	s.stats.SetGauge(dim.gauge(), float64(s.locked[dim].Load()))
	s.stats.Increment(dim.lockoutStat())
	s.logger.Warn("intruder lockout",
		log.Str("dimension", dim.String()),
		log.Str("key", key),
		log.Uint32("attempts", rec.Count))
	s.dispatchAlert(Lockout{Dimension: dim, Key: key, Attempts: rec.Count, Age: rec.episodeAge(now), At: now})
}

func (s *Service) dispatchAlert(l Lockout) {
	if s.notifier == nil {
		return
	}
	s.alertMu.Lock()
	if s.alertsClosed {
		s.alertMu.Unlock()
		s.logger.Debug("lockout alert skipped, service closing",
			log.Str("dimension", l.Dimension.String()),
			log.Str("key", l.Key))
		return
	}
	s.alerts.Add(1)
	s.alertMu.Unlock()
	go func() {
		defer s.alerts.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.settings.AlertTimeout)
		defer cancel()
		if err := s.notifier.NotifyLockout(ctx, l); err != nil {
			s.alertFailures.Add(1)
			s.stats.Increment(stats.AlertFailures)
			s.logger.Warn("lockout alert failed",
				log.Str("dimension", l.Dimension.String()),
				log.Str("key", l.Key),
				log.Err(err))
		}
	}()
}

// CheckUsernameLocked returns a *LockedOutError when username is locked.
func (s *Service) CheckUsernameLocked(ctx context.Context, username string) error {
	return s.check(ctx, DimensionUser, username)
}

// CheckAddressLocked returns a *LockedOutError when address is locked.
func (s *Service) CheckAddressLocked(ctx context.Context, address string) error {
	return s.check(ctx, DimensionAddress, address)
}

func (s *Service) check(_ context.Context, dim Dimension, key string) error {
	policy := s.settings.policy(dim)
	if !s.open() || key == "" || !policy.Enabled() {
		return nil
	}
	defer s.tick()
	rec, found, err := s.load(dim, key)
	if err != nil {
		s.storageFailure("read", dim, err)
		return nil
	}
	if found && IsLocked(rec, policy, s.clock.Now()) {
		return &LockedOutError{Dimension: dim, Key: key, Code: dim.ErrorCode(), Attempts: rec.Count}
	}
	return nil
}

// RecordSuccessfulAttempt clears the username's record. Absent keys are a no-op.
func (s *Service) RecordSuccessfulAttempt(ctx context.Context, username string) {
	if !s.open() || username == "" {
		return
	}
	if err := s.clear(ctx, DimensionUser, username); err != nil {
		s.storageFailure("clear", DimensionUser, err)
	}
	s.tick()
}

// RecordSuccessfulAddress clears the address's record. Absent keys are a no-op.
func (s *Service) RecordSuccessfulAddress(ctx context.Context, address string) {
	if !s.open() || address == "" {
		return
	}
	if err := s.clear(ctx, DimensionAddress, address); err != nil {
		s.storageFailure("clear", DimensionAddress, err)
	}
	s.tick()
}

// Clear removes a record on behalf of an administrator. Unlike the
// success path it reports storage errors.
func (s *Service) Clear(ctx context.Context, dim Dimension, key string) error {
	if err := s.clear(ctx, dim, key); err != nil {
		s.storageFailure("clear", dim, err)
		return err
	}
	return nil
}

func (s *Service) clear(ctx context.Context, dim Dimension, key string) error {
	s.locks[dim].Lock()
	defer s.locks[dim].Unlock()

	rec, found, err := s.load(dim, key)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	wasLocked := IsLocked(rec, s.settings.policy(dim), s.clock.Now())
	if err := s.store.Remove(ctx, dim.table(), key); err != nil {
		return err
	}
	if wasLocked {
		s.decLocked(dim)
	}
	return nil
}

// ClearAll truncates both tables.
func (s *Service) ClearAll(ctx context.Context) error {
	for _, dim := range dimensions {
		s.locks[dim].Lock()
		err := s.store.Truncate(ctx, dim.table())
		if err == nil {
			s.locked[dim].Store(0)
			s.stats.SetGauge(dim.gauge(), 0)
		}
		s.locks[dim].Unlock()
		if err != nil {
			s.storageFailure("truncate", dim, err)
			return err
		}
	}
	return nil
}

// Lookup returns the stored record for key.
func (s *Service) Lookup(_ context.Context, dim Dimension, key string) (Record, bool, error) {
	return s.load(dim, key)
}

// IsLocked evaluates rec against the dimension's policy now.
func (s *Service) IsLocked(rec Record, dim Dimension) bool {
	return IsLocked(rec, s.settings.policy(dim), s.clock.Now())
}

// LockedCount returns the locked-keys gauge for dim.
func (s *Service) LockedCount(dim Dimension) int64 { return s.locked[dim].Load() }

func (s *Service) decLocked(dim Dimension) {
	for {
		cur := s.locked[dim].Load()
		if cur <= 0 || s.locked[dim].CompareAndSwap(cur, cur-1) {
			break
		}
	}
	s.stats.SetGauge(dim.gauge(), float64(s.locked[dim].Load()))
}

func (s *Service) load(dim Dimension, key string) (Record, bool, error) {
	b, found, err := s.store.Get(dim.table(), key)
	if err != nil || !found {
		return Record{}, false, err
	}
	rec, err := decodeRecord(b)
	if err != nil {
		// an unreadable record is treated as absent and overwritten
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (s *Service) save(ctx context.Context, dim Dimension, key string, rec Record) error {
	b, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, dim.table(), key, b)
}

func (s *Service) storageFailure(op string, dim Dimension, err error) {
	s.storageErrors.Add(1)
	s.stats.Increment(stats.IntruderStorageErrors)
	msg := fmt.Sprintf("%s %s: %v", op, dim, err)
	s.lastErr.Store(&msg)
	s.storageWarn.Do(func() {
		s.logger.Error("intruder storage failure, failing open",
			log.Str("op", op),
			log.Str("dimension", dim.String()),
			log.Err(err))
	})
}

// Close stops background work and waits for in-flight alerts, bounded by
// CloseTimeout.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		prev := Status(s.status.Swap(int32(StatusClosed)))
		if prev == StatusNew {
			return
		}
		close(s.stop)
		s.alertMu.Lock()
		s.alertsClosed = true
		s.alertMu.Unlock()

		done := make(chan struct{})
		go func() {
			s.workers.Wait()
			s.alerts.Wait()
			close(done)
		}()
		t := time.NewTimer(s.settings.CloseTimeout)
		defer t.Stop()
		select {
		case <-done:
		case <-t.C:
			err = errors.New("intruder: background work did not finish before close timeout")
			s.logger.Warn("intruder close timed out", log.Dur("timeout", s.settings.CloseTimeout))
		}
	})
	return err
}

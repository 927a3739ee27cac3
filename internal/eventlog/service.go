package eventlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/rzbill/warden/internal/queue"
	"github.com/rzbill/warden/internal/stats"
	"github.com/rzbill/warden/internal/txsize"
	"github.com/rzbill/warden/pkg/id"
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

// Option configures a Service.
type Option func(*Service)

// WithSettings sets retention and buffering. Settings are normalised by New.
func WithSettings(s Settings) Option {
	return func(svc *Service) { svc.settings = s }
}

// WithClock sets the time source used for timestamps and age retention.
func WithClock(c clockwork.Clock) Option {
	return func(svc *Service) { svc.clock = c }
}

// WithStats sets the statistics sink. Defaults to stats.Noop.
func WithStats(sink stats.Sink) Option {
	return func(svc *Service) { svc.stats = sink }
}

// WithIDGenerator sets the event ID source. Defaults to a generator on the
// service clock.
func WithIDGenerator(g *id.Generator) Option {
	return func(svc *Service) { svc.ids = g }
}

// WithDiagnostics sets where abandoned-event reports go. Defaults to stderr.
func WithDiagnostics(w io.Writer) Option {
	return func(svc *Service) { svc.stderr = w }
}

// WithLogger sets the service's own diagnostics logger. It must not route
// back into this service.
func WithLogger(l log.Logger) Option { return func(svc *Service) { svc.logger = l } }

// Service is the event log.
type Service struct {
	settings Settings
	queue    *queue.Queue
	calc     *txsize.Calculator
	clock    clockwork.Clock
	ids      *id.Generator
	logger   log.Logger
	stats    stats.Sink
	stderr   io.Writer

	status   atomic.Int32
	disabled atomic.Bool
	buffer   chan LogEvent
	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}

	// flushMu serialises flush and trim between the writer and Close, and
	// guards calc.
	flushMu   sync.Mutex
	closeOnce sync.Once

	written       atomic.Int64
	dropped       atomic.Int64
	oversize      atomic.Int64
	trimmed       atomic.Int64
	corrupt       atomic.Int64
	storageErrors atomic.Int64
	lastErr       atomic.Pointer[string]

	decodeWarn  rate.Sometimes
	dropWarn    rate.Sometimes
	storageWarn rate.Sometimes
}

// New builds a service over q. Call Open to start it.
func New(q *queue.Queue, opts ...Option) *Service {
	s := &Service{
		settings:    DefaultSettings(),
		queue:       q,
		clock:       clockwork.NewRealClock(),
		stats:       stats.Noop{},
		stderr:      os.Stderr,
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		decodeWarn:  rate.Sometimes{First: 1},
		dropWarn:    rate.Sometimes{First: 1, Interval: 10 * time.Second},
		storageWarn: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	s.settings = s.settings.normalize()
	if s.logger == nil {
		s.logger = log.NewLogger(log.WithFormatter(&log.TextFormatter{}))
	}
	s.logger = s.logger.WithComponent("eventlog")
	if s.ids == nil {
		s.ids = id.NewGenerator(s.clock)
	}
	s.calc = txsize.New(s.settings.Transactions)
	s.buffer = make(chan LogEvent, s.settings.BufferSize)
	return s
}

// Status returns the lifecycle state.
func (s *Service) Status() Status { return Status(s.status.Load()) }

// Settings returns the normalised settings.
func (s *Service) Settings() Settings { return s.settings }

// Open verifies the queue and starts the writer. With MaxEvents == 0 it
// clears stored history and leaves the service inert.
func (s *Service) Open(ctx context.Context) error {
	if !s.status.CompareAndSwap(int32(StatusNew), int32(StatusOpening)) {
		return fmt.Errorf("eventlog: open in state %s", s.Status())
	}
	if s.settings.Disabled() {
		s.disabled.Store(true)
		if err := s.queue.Clear(ctx); err != nil {
			s.recordStorageError("clear", err)
			return err
		}
		s.logger.Info("event logging disabled, history cleared")
		return nil
	}
	if _, _, err := s.queue.PeekOldest(); err != nil && !errors.Is(err, queue.ErrCorrupt) {
		s.recordStorageError("open", err)
		return err
	}
	s.status.Store(int32(StatusOpen))
	go s.run()
	s.logger.Info("event log open",
		log.Int("stored", s.queue.Len()),
		log.Int("maxEvents", s.settings.MaxEvents),
		log.Dur("maxAge", s.settings.MaxAge))
	return nil
}

// WriteEvent queues e for storage. It never fails; events are dropped when
// the service is not open or the buffer stays full for BufferWait.
func (s *Service) WriteEvent(e LogEvent) {
	if s.Status() != StatusOpen {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock.Now()
	}
	e.Timestamp = e.Timestamp.UTC()
	e.ID = s.ids.Next()

	select {
	case s.buffer <- e:
		if len(s.buffer) >= s.batchSize() {
			s.signal()
		}
		return
	default:
	}

	s.signal()
	t := time.NewTimer(s.settings.BufferWait)
	defer t.Stop()
	select {
	case s.buffer <- e:
		return
	case <-t.C:
	case <-s.stop:
	}
	s.dropped.Add(1)
	s.stats.Increment(stats.EventsDropped)
	s.dropWarn.Do(func() {
		s.logger.Warn("event buffer full, dropping events", log.Int("capacity", cap(s.buffer)))
	})
}

func (s *Service) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) batchSize() int {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.calc.Size()
}

func (s *Service) run() {
	defer close(s.done)
	ctx := context.Background()
	lastFlush := time.Now()
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		worked := false
		if n := len(s.buffer); n > 0 && (n >= s.batchSize() || time.Since(lastFlush) >= s.settings.DirtyInterval) {
			taken, _ := s.flush(ctx)
			lastFlush = time.Now()
			worked = taken > 0
		}
		if s.trim(ctx) > 0 {
			worked = true
		}
		if worked {
			continue
		}

		t := time.NewTimer(s.settings.IdleSleep)
		select {
		case <-s.stop:
			t.Stop()
			return
		case <-s.wake:
			t.Stop()
		case <-t.C:
		}
	}
}

// flush writes up to one calculator-sized batch. It returns how many events
// left the buffer and any storage error; on error those events are lost.
func (s *Service) flush(ctx context.Context) (int, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	size := s.calc.Size()
	batch := make([]queue.Timed, 0, size)
	taken := 0
collect:
	for taken < size {
		select {
		case e := <-s.buffer:
			taken++
			b, err := EncodeEvent(e)
			if err != nil {
				s.dropped.Add(1)
				s.stats.Increment(stats.EventsDropped)
				continue
			}
			if len(b) > s.settings.MaxEventBytes {
				s.oversize.Add(1)
				s.stats.Increment(stats.EventsDropped)
				s.dropWarn.Do(func() {
					s.logger.Warn("dropping oversize event", log.Str("topic", e.Topic), log.Int("bytes", len(b)))
				})
				continue
			}
			batch = append(batch, queue.Timed{Time: e.Timestamp, Data: b})
		default:
			break collect
		}
	}
	if len(batch) == 0 {
		return taken, nil
	}

	start := time.Now()
	err := s.queue.AppendTimed(ctx, batch...)
	s.calc.Record(time.Since(start))
	if err != nil {
		s.dropped.Add(int64(len(batch)))
		s.stats.Add(stats.EventsDropped, int64(len(batch)))
		s.recordStorageError("append", err)
		return taken, err
	}
	s.written.Add(int64(len(batch)))
	s.stats.Add(stats.EventsWritten, int64(len(batch)))
	for range batch {
		s.stats.UpdateEventRate(stats.RateLogEvents)
	}
	s.stats.SetGauge(stats.GaugeEventBuffer, float64(len(s.buffer)))
	return taken, nil
}

// trim applies count retention, falling back to age retention when the
// count is within bounds. It returns how many events were removed.
func (s *Service) trim(ctx context.Context) int {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	size := s.calc.Size()
	var (
		n   int
		err error
	)
	if excess := s.queue.Len() - s.settings.MaxEvents; excess > 0 {
		n, err = s.queue.RemoveOldest(ctx, min(excess, size))
	} else if s.settings.MaxAge > 0 {
		cutoff := s.clock.Now().Add(-s.settings.MaxAge)
		n, err = s.queue.RemoveOlderThan(ctx, cutoff, max(s.settings.AgeTrimChunk, size))
	}
	if err != nil {
		s.recordStorageError("trim", err)
		return 0
	}
	if n > 0 {
		s.trimmed.Add(int64(n))
		s.stats.Add(stats.EventsTrimmed, int64(n))
		s.stats.SetGauge(stats.GaugeStoredEvents, float64(s.queue.Len()))
	}
	return n
}

func (s *Service) recordStorageError(op string, err error) {
	s.storageErrors.Add(1)
	s.stats.Increment(stats.EventLogStorageErrors)
	msg := op + ": " + err.Error()
	s.lastErr.Store(&msg)
	s.storageWarn.Do(func() {
		s.logger.Error("event log storage failure", log.Str("op", op), log.Err(err))
	})
}

// Close stops intake, waits up to CloseTimeout for the writer and flushes
// the remainder synchronously.
func (s *Service) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		prev := Status(s.status.Swap(int32(StatusClosed)))
		if prev != StatusOpen {
			return
		}
		close(s.stop)

		t := time.NewTimer(s.settings.CloseTimeout)
		defer t.Stop()
		select {
		case <-s.done:
		case <-t.C:
			s.logger.Warn("event log writer did not stop in time", log.Dur("timeout", s.settings.CloseTimeout))
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.settings.CloseTimeout)
		defer cancel()
		abandoned := 0
		for len(s.buffer) > 0 {
			taken, err := s.flush(ctx)
			if err != nil {
				abandoned += taken
				closeErr = err
				break
			}
			if taken == 0 {
				break
			}
		}
		abandoned += len(s.buffer)
		if abandoned > 0 {
			fmt.Fprintf(s.stderr, "eventlog: %d events abandoned on close\n", abandoned)
		}
	})
	return closeErr
}

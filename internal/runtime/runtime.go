package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rzbill/warden/internal/alert"
	cfgpkg "github.com/rzbill/warden/internal/config"
	"github.com/rzbill/warden/internal/eventlog"
	"github.com/rzbill/warden/internal/intruder"
	"github.com/rzbill/warden/internal/localdb"
	"github.com/rzbill/warden/internal/queue"
	"github.com/rzbill/warden/internal/stats"
	pebblestore "github.com/rzbill/warden/internal/storage/pebble"
	"github.com/rzbill/warden/internal/txsize"
	"github.com/rzbill/warden/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	// DataDir overrides Config.DataDir when set.
	DataDir string
	// Fsync overrides Config.Fsync when not FsyncModeUnspecified.
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config

	Logger log.Logger
	// Stats defaults to a fresh Prometheus sink.
	Stats stats.Sink
	// Metrics observes storage latencies. Defaults to the Prometheus sink's
	// storage metrics when Stats is a *stats.Prometheus.
	Metrics pebblestore.MetricsHook
	Clock   clockwork.Clock
	// Notifiers are added to the ones selected by Config.Alerts.
	Notifiers []intruder.Notifier
}

// Runtime wires storage, config, and services for a single-node instance.
type Runtime struct {
	db       *pebblestore.DB
	store    *localdb.Store
	events   *eventlog.Service
	intruder *intruder.Service
	stats    stats.Sink
	config   cfgpkg.Config
	logger   log.Logger
}

// Open initializes storage and opens both services.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger(log.WithOutput(log.NewNullOutput()))
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	sink := opts.Stats
	if sink == nil {
		sink = stats.NewPrometheus()
	}
	metrics := opts.Metrics
	if p, ok := sink.(*stats.Prometheus); ok && metrics == nil {
		metrics = p.StorageMetrics()
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	fsync := opts.Fsync
	if fsync == pebblestore.FsyncModeUnspecified {
		mode, err := pebblestore.ParseFsyncMode(cfg.Fsync)
		if err != nil {
			return nil, err
		}
		fsync = mode
	}
	interval := opts.FsyncInterval
	if interval <= 0 {
		interval = time.Duration(cfg.FsyncIntervalMs) * time.Millisecond
	}

	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       dataDir,
		Fsync:         fsync,
		FsyncInterval: interval,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	rt := &Runtime{db: db, store: localdb.New(db), stats: sink, config: cfg, logger: logger}

	q, err := queue.Open(db, localdb.TableEventLogEvents, queue.WithClock(clock))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open event queue: %w", err)
	}
	rt.events = eventlog.New(q,
		eventlog.WithSettings(EventLogSettings(cfg.EventLog)),
		eventlog.WithClock(clock),
		eventlog.WithStats(sink),
		eventlog.WithLogger(logger),
	)
	if err := rt.events.Open(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open event log: %w", err)
	}

	notifiers := rt.notifiers(opts.Notifiers)
	iopts := []intruder.Option{
		intruder.WithSettings(IntruderSettings(cfg.Intruder)),
		intruder.WithClock(clock),
		intruder.WithStats(sink),
		intruder.WithLogger(logger),
	}
	if len(notifiers) > 0 {
		iopts = append(iopts, intruder.WithNotifier(notifiers))
	}
	rt.intruder = intruder.New(rt.store, iopts...)
	if err := rt.intruder.Open(ctx); err != nil {
		_ = rt.events.Close()
		_ = db.Close()
		return nil, fmt.Errorf("open intruder service: %w", err)
	}
	return rt, nil
}

func (r *Runtime) notifiers(extra []intruder.Notifier) alert.Multi {
	var m alert.Multi
	a := r.config.Alerts
	if a.Log {
		m = append(m, alert.NewLogNotifier(r.logger))
	}
	if a.EventLog && !r.events.Settings().Disabled() {
		m = append(m, alert.NewEventNotifier(r.events))
	}
	if a.WebhookURL != "" {
		m = append(m, alert.NewWebhookNotifier(alert.WebhookConfig{
			URL:     a.WebhookURL,
			Headers: a.WebhookHeaders,
			Timeout: time.Duration(a.WebhookTimeoutMs) * time.Millisecond,
		}))
	}
	return append(m, extra...)
}

// EventLogSettings converts the file configuration to service settings.
func EventLogSettings(c cfgpkg.EventLogConfig) eventlog.Settings {
	s := eventlog.DefaultSettings()
	s.MaxEvents = c.MaxEvents
	s.MaxAge = time.Duration(c.MaxAgeMs) * time.Millisecond
	s.BufferSize = c.BufferSize
	s.BufferWait = time.Duration(c.BufferWaitMs) * time.Millisecond
	s.MaxEventBytes = c.MaxEventBytes
	s.Transactions = txsize.Settings{
		LowGoal:  time.Duration(c.TxLowGoalMs) * time.Millisecond,
		HighGoal: time.Duration(c.TxHighGoalMs) * time.Millisecond,
		Min:      c.TxMin,
		Max:      c.TxMax,
	}
	return s
}

// IntruderSettings converts the file configuration to service settings.
func IntruderSettings(c cfgpkg.IntruderConfig) intruder.Settings {
	s := intruder.DefaultSettings()
	s.User = intruder.Policy{ResetDuration: time.Duration(c.User.ResetMs) * time.Millisecond, MaxAttempts: c.User.MaxAttempts}
	s.Address = intruder.Policy{ResetDuration: time.Duration(c.Address.ResetMs) * time.Millisecond, MaxAttempts: c.Address.MaxAttempts}
	s.MaxRecordAge = time.Duration(c.MaxRecordAgeMs) * time.Millisecond
	s.CleanupThreshold = c.CleanupThreshold
	s.AlertTimeout = time.Duration(c.AlertTimeoutMs) * time.Millisecond
	return s
}

// LogOutput returns a log.Output that stores process log entries at or
// above the configured event-log level.
func (r *Runtime) LogOutput() *eventlog.LogOutput {
	lvl, err := log.ParseLevel(r.config.EventLog.MinLevel)
	if err != nil {
		lvl = log.InfoLevel
	}
	return eventlog.NewLogOutput(r.events, lvl, "warden")
}

// SearchDefaults returns search parameters carrying the configured query
// time bound.
func (r *Runtime) SearchDefaults() eventlog.SearchParameters {
	p := eventlog.DefaultSearch()
	if r.config.EventLog.MaxQueryMs > 0 {
		p.MaxQueryTime = time.Duration(r.config.EventLog.MaxQueryMs) * time.Millisecond
	}
	return p
}

// Health aggregates the state of every component.
type Health struct {
	Healthy       bool            `json:"healthy"`
	DiskUsage     uint64          `json:"diskUsageBytes"`
	StorageStatus string          `json:"storage"`
	EventLog      eventlog.Health `json:"eventLog"`
	Intruder      intruder.Health `json:"intruder"`
}

// Health returns the aggregate health record.
func (r *Runtime) Health(ctx context.Context) Health {
	h := Health{
		EventLog: r.events.Health(),
		Intruder: r.intruder.Health(),
	}
	if err := r.CheckHealth(ctx); err != nil {
		h.StorageStatus = err.Error()
	} else {
		h.StorageStatus = "ok"
		h.DiskUsage = r.db.DiskUsage()
	}
	h.Healthy = h.StorageStatus == "ok" && h.EventLog.Healthy() && h.Intruder.Healthy()
	return h
}

// Close closes the services, then storage. Lockout alerts may still write to
// the event log, so the intruder service goes first.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	var errs []error
	if r.intruder != nil {
		errs = append(errs, r.intruder.Close())
	}
	if r.events != nil {
		errs = append(errs, r.events.Close())
	}
	errs = append(errs, r.db.Close())
	r.db = nil
	return errors.Join(errs...)
}

// CheckHealth performs a simple storage health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// EventLog returns the event log service.
func (r *Runtime) EventLog() *eventlog.Service { return r.events }

// Intruder returns the lockout service.
func (r *Runtime) Intruder() *intruder.Service { return r.intruder }

// Stats returns the statistics sink.
func (r *Runtime) Stats() stats.Sink { return r.stats }

// Store exposes the table store (internal use only).
func (r *Runtime) Store() *localdb.Store { return r.store }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

package serverrun

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/rzbill/warden/internal/config"
	"github.com/rzbill/warden/internal/runtime"
	httpserver "github.com/rzbill/warden/internal/server/http"
	pebblestore "github.com/rzbill/warden/internal/storage/pebble"
	logpkg "github.com/rzbill/warden/pkg/log"
)

type Options struct {
	DataDir       string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
}

// Run starts the runtime and the admin HTTP server and blocks until ctx is
// cancelled or the server fails.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	problems := cfg.Validate()

	// Services log through a logger without the event-log sink so they never
	// feed themselves.
	baseLogger, err := logpkg.ApplyConfig(&cfg.Log)
	if err != nil {
		baseLogger = logpkg.NewLogger(logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}
	for _, p := range problems {
		baseLogger.Warn("invalid configuration", logpkg.Str("field", p.Field), logpkg.Str("reason", p.Reason))
	}

	if opts.DataDir == "" {
		opts.DataDir = cfg.DataDir
	}
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.HTTPAddr == "" {
		opts.HTTPAddr = cfg.HTTPAddr
	}
	storeDir := cfgpkg.StoreDir(opts.DataDir)
	rt, err := runtime.Open(sctx, runtime.Options{
		DataDir:       storeDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        cfg,
		Logger:        baseLogger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	// Process-wide logger: the configured outputs plus the event log.
	procLogger, err := logpkg.ApplyConfig(&cfg.Log, rt.LogOutput())
	if err != nil {
		procLogger = baseLogger
	}
	restore := logpkg.RedirectStdLog(procLogger)
	defer restore()

	procLogger.Info("Starting Warden server",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
		logpkg.Bool("user_tracking", cfg.Intruder.User.Enabled()),
		logpkg.Bool("address_tracking", cfg.Intruder.Address.Enabled()),
		logpkg.Int("max_events", cfg.EventLog.MaxEvents),
	)

	hsrv := httpserver.New(rt, procLogger)

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error {
		return hsrv.ListenAndServe(gctx, opts.HTTPAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		hsrv.Close()
		return nil
	})
	err = g.Wait()
	procLogger.Info("Warden server stopped")
	return err
}

package intruder

import (
	"context"
	"time"

	"github.com/rzbill/warden/internal/stats"
	"github.com/rzbill/warden/pkg/log"
)

const sweepBatch = 256

// tick counts one service operation and wakes the cleaner once
// CleanupThreshold operations have accumulated.
func (s *Service) tick() {
	n := s.activity.Add(1)
	if n < int64(s.settings.CleanupThreshold) {
		return
	}
	if !s.activity.CompareAndSwap(n, 0) {
		return
	}
	select {
	case s.cleanCh <- struct{}{}:
	default:
	}
}

func (s *Service) startupScan() {
	defer s.workers.Done()
	ctx, cancel := s.stopContext()
	defer cancel()
	if _, err := s.sweep(ctx); err != nil {
		s.logger.Warn("intruder startup scan incomplete", log.Err(err))
	}
	s.scanDone.Store(true)
	s.logger.Debug("intruder startup scan done",
		log.Int64("lockedUsers", s.locked[DimensionUser].Load()),
		log.Int64("lockedAddresses", s.locked[DimensionAddress].Load()))
}

func (s *Service) cleaner() {
	defer s.workers.Done()
	for {
		select {
		case <-s.stop:
			return
		case <-s.cleanCh:
			ctx, cancel := s.stopContext()
			if n, err := s.sweep(ctx); err != nil {
				s.logger.Warn("intruder sweep failed", log.Err(err))
			} else if n > 0 {
				s.logger.Debug("intruder sweep", log.Int("removed", n))
			}
			cancel()
		}
	}
}

// stopContext is cancelled when the service closes.
func (s *Service) stopContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Sweep removes records older than MaxRecordAge from both tables and
// recomputes the locked gauges. It returns the number of records removed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	return s.sweep(ctx)
}

func (s *Service) sweep(ctx context.Context) (int, error) {
	total := 0
	for _, dim := range dimensions {
		n, err := s.sweepDimension(ctx, dim)
		total += n
		if err != nil {
			s.storageFailure("sweep", dim, err)
			return total, err
		}
	}
	s.lastSweep.Store(s.clock.Now().UnixMilli())
	if total > 0 {
		s.cleaned.Add(int64(total))
		s.stats.Add(stats.IntruderRecordsCleaned, int64(total))
	}
	return total, nil
}

func (s *Service) sweepDimension(ctx context.Context, dim Dimension) (int, error) {
	s.locks[dim].Lock()
	defer s.locks[dim].Unlock()

	policy := s.settings.policy(dim)
	now := s.clock.Now()

	it, err := s.store.Iterator(dim.table())
	if err != nil {
		return 0, err
	}
	var (
		expired []string
		locked  int64
	)
	for it.Next() {
		if err := ctx.Err(); err != nil {
			_ = it.Close()
			return 0, err
		}
		rec, err := decodeRecord(it.Value())
		if err != nil || rec.age(now) >= s.settings.MaxRecordAge {
			expired = append(expired, it.Key())
			continue
		}
		if IsLocked(rec, policy, now) {
			locked++
		}
	}
	if err := it.Err(); err != nil {
		_ = it.Close()
		return 0, err
	}
	if err := it.Close(); err != nil {
		return 0, err
	}

	s.locked[dim].Store(locked)
	s.stats.SetGauge(dim.gauge(), float64(locked))

	removed := 0
	for len(expired) > 0 {
		n := min(sweepBatch, len(expired))
		if err := s.store.RemoveKeys(ctx, dim.table(), expired[:n]); err != nil {
			return removed, err
		}
		removed += n
		expired = expired[n:]
	}
	return removed, nil
}

// Health is a point-in-time snapshot of the service.
type Health struct {
	Status           string    `json:"status"`
	UserTracking     bool      `json:"userTracking"`
	AddressTracking  bool      `json:"addressTracking"`
	LockedUsers      int64     `json:"lockedUsers"`
	LockedAddresses  int64     `json:"lockedAddresses"`
	StartupScanDone  bool      `json:"startupScanDone"`
	StorageErrors    int64     `json:"storageErrors"`
	AlertFailures    int64     `json:"alertFailures"`
	RecordsCleaned   int64     `json:"recordsCleaned"`
	LastSweep        time.Time `json:"lastSweep,omitempty"`
	LastStorageError string    `json:"lastStorageError,omitempty"`
}

// Healthy reports whether the service is open and has seen no storage errors.
func (h Health) Healthy() bool {
	return h.Status == StatusOpen.String() && h.StorageErrors == 0
}

// Health returns the current snapshot.
func (s *Service) Health() Health {
	h := Health{
		Status:          s.Status().String(),
		UserTracking:    s.settings.User.Enabled(),
		AddressTracking: s.settings.Address.Enabled(),
		LockedUsers:     s.locked[DimensionUser].Load(),
		LockedAddresses: s.locked[DimensionAddress].Load(),
		StartupScanDone: s.scanDone.Load(),
		StorageErrors:   s.storageErrors.Load(),
		AlertFailures:   s.alertFailures.Load(),
		RecordsCleaned:  s.cleaned.Load(),
	}
	if ms := s.lastSweep.Load(); ms > 0 {
		h.LastSweep = time.UnixMilli(ms).UTC()
	}
	if p := s.lastErr.Load(); p != nil {
		h.LastStorageError = *p
	}
	return h
}

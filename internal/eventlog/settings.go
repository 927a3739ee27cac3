package eventlog

import (
	"time"

	"github.com/rzbill/warden/internal/txsize"
)

// MinMaxEvents is the floor applied to a non-zero MaxEvents.
const MinMaxEvents = 100

// Settings tune the service.
type Settings struct {
	// MaxEvents caps the stored history. Zero disables logging and clears
	// existing history; other values are floored at MinMaxEvents.
	MaxEvents int
	// MaxAge removes events written longer ago. Zero or negative disables.
	MaxAge time.Duration

	BufferSize    int
	BufferWait    time.Duration
	DirtyInterval time.Duration
	IdleSleep     time.Duration
	CloseTimeout  time.Duration
	AgeTrimChunk  int
	MaxEventBytes int

	Transactions txsize.Settings
}

// DefaultSettings returns production defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxEvents:     10_000,
		MaxAge:        30 * 24 * time.Hour,
		BufferSize:    10_000,
		BufferWait:    30 * time.Second,
		DirtyInterval: time.Second,
		IdleSleep:     150 * time.Millisecond,
		CloseTimeout:  10 * time.Second,
		AgeTrimChunk:  500,
		MaxEventBytes: 64 << 10,
		Transactions:  txsize.DefaultSettings(),
	}
}

func (s Settings) normalize() Settings {
	d := DefaultSettings()
	if s.MaxEvents < 0 {
		s.MaxEvents = d.MaxEvents
	}
	if s.MaxEvents > 0 && s.MaxEvents < MinMaxEvents {
		s.MaxEvents = MinMaxEvents
	}
	if s.BufferSize <= 0 {
		s.BufferSize = d.BufferSize
	}
	if s.BufferWait <= 0 {
		s.BufferWait = d.BufferWait
	}
	if s.DirtyInterval <= 0 {
		s.DirtyInterval = d.DirtyInterval
	}
	if s.IdleSleep <= 0 {
		s.IdleSleep = d.IdleSleep
	}
	if s.CloseTimeout <= 0 {
		s.CloseTimeout = d.CloseTimeout
	}
	if s.AgeTrimChunk <= 0 {
		s.AgeTrimChunk = d.AgeTrimChunk
	}
	if s.MaxEventBytes <= 0 {
		s.MaxEventBytes = d.MaxEventBytes
	}
	return s
}

// Disabled reports whether logging is switched off.
func (s Settings) Disabled() bool { return s.MaxEvents == 0 }

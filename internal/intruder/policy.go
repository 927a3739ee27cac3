package intruder

import (
	"fmt"
	"strings"
	"time"

	"github.com/rzbill/warden/internal/localdb"
	"github.com/rzbill/warden/internal/stats"
)

// Dimension is the kind of key being tracked.
type Dimension int

const (
	DimensionUser Dimension = iota
	DimensionAddress
)

var dimensions = [...]Dimension{DimensionUser, DimensionAddress}

func (d Dimension) String() string {
	switch d {
	case DimensionUser:
		return "user"
	case DimensionAddress:
		return "address"
	default:
		return fmt.Sprintf("dimension(%d)", int(d))
	}
}

// ParseDimension accepts "user"/"username" and "address"/"addr".
func ParseDimension(s string) (Dimension, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "username":
		return DimensionUser, nil
	case "address", "addr":
		return DimensionAddress, nil
	default:
		return 0, fmt.Errorf("intruder: unknown dimension %q", s)
	}
}

// ErrorCode is the code carried by LockedOutError for this dimension.
func (d Dimension) ErrorCode() string {
	if d == DimensionAddress {
		return "ERROR_INTRUDER_ADDRESS"
	}
	return "ERROR_INTRUDER_USER"
}

func (d Dimension) table() localdb.Table {
	if d == DimensionAddress {
		return localdb.TableIntruderAddress
	}
	return localdb.TableIntruderUser
}

func (d Dimension) gauge() stats.Gauge {
	if d == DimensionAddress {
		return stats.GaugeLockedAddresses
	}
	return stats.GaugeLockedUsers
}

func (d Dimension) lockoutStat() stats.Statistic {
	if d == DimensionAddress {
		return stats.IntruderAddressLockouts
	}
	return stats.IntruderUserLockouts
}

// Policy governs one dimension. Either field <= 0 disables tracking.
type Policy struct {
	ResetDuration time.Duration
	MaxAttempts   int
}

// Enabled reports whether the dimension is tracked.
func (p Policy) Enabled() bool { return p.ResetDuration > 0 && p.MaxAttempts > 0 }

// Settings configure the service.
type Settings struct {
	User    Policy
	Address Policy

	// MaxRecordAge is how long a record is kept after its last attempt.
	// It is raised to the longest ResetDuration when shorter.
	MaxRecordAge time.Duration
	// CleanupThreshold is the number of service operations between sweeps.
	CleanupThreshold int
	AlertTimeout     time.Duration
	CloseTimeout     time.Duration
}

// DefaultSettings lock a user after 5 failures and an address after 20
// within 15 minutes.
func DefaultSettings() Settings {
	return Settings{
		User:             Policy{ResetDuration: 15 * time.Minute, MaxAttempts: 5},
		Address:          Policy{ResetDuration: 15 * time.Minute, MaxAttempts: 20},
		MaxRecordAge:     24 * time.Hour,
		CleanupThreshold: 1000,
		AlertTimeout:     10 * time.Second,
		CloseTimeout:     10 * time.Second,
	}
}

func (s Settings) normalize() Settings {
	d := DefaultSettings()
	if s.MaxRecordAge <= 0 {
		s.MaxRecordAge = d.MaxRecordAge
	}
	for _, p := range []Policy{s.User, s.Address} {
		if p.Enabled() && p.ResetDuration > s.MaxRecordAge {
			s.MaxRecordAge = p.ResetDuration
		}
	}
	if s.CleanupThreshold <= 0 {
		s.CleanupThreshold = d.CleanupThreshold
	}
	if s.AlertTimeout <= 0 {
		s.AlertTimeout = d.AlertTimeout
	}
	if s.CloseTimeout <= 0 {
		s.CloseTimeout = d.CloseTimeout
	}
	return s
}

func (s Settings) policy(d Dimension) Policy {
	if d == DimensionAddress {
		return s.Address
	}
	return s.User
}

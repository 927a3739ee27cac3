// Package txsize adapts the number of items written per storage transaction
// to observed commit latency.
//
// The calculator grows the batch while commits are fast, shrinks it when they
// run slow, and halves it when a commit is wildly out of range. Inside the
// goal band a little random jitter keeps it probing for headroom. It does no
// I/O and no locking; the owning writer loop serialises calls.
package txsize

import (
	"math/rand"
	"time"
)

// Settings bound the calculator.
type Settings struct {
	LowGoal  time.Duration
	HighGoal time.Duration
	Min      int
	Max      int
	Initial  int
}

// DefaultSettings match a writer that wants commits between 25ms and 75ms.
func DefaultSettings() Settings {
	return Settings{
		LowGoal:  25 * time.Millisecond,
		HighGoal: 75 * time.Millisecond,
		Min:      1,
		Max:      1000,
		Initial:  3,
	}
}

// normalize replaces invalid fields with defaults.
func (s Settings) normalize() Settings {
	d := DefaultSettings()
	if s.LowGoal <= 0 || s.HighGoal <= s.LowGoal {
		s.LowGoal, s.HighGoal = d.LowGoal, d.HighGoal
	}
	if s.Min < 1 {
		s.Min = d.Min
	}
	if s.Max < s.Min {
		s.Max = max(d.Max, s.Min)
	}
	if s.Initial <= 0 {
		s.Initial = d.Initial
	}
	return s
}

// Calculator tracks the current transaction size.
type Calculator struct {
	settings   Settings
	outOfRange time.Duration
	size       int
	jitter     func() int
}

// New returns a calculator seeded at settings.Initial, clamped to [Min, Max].
func New(settings Settings) *Calculator {
	s := settings.normalize()
	c := &Calculator{
		settings:   s,
		outOfRange: 5 * s.HighGoal,
		size:       s.Initial,
		jitter:     func() int { return rand.Intn(10) },
	}
	c.clamp()
	return c
}

// Size returns the number of items the next transaction should carry.
func (c *Calculator) Size() int { return c.size }

// Settings returns the normalised settings in effect.
func (c *Calculator) Settings() Settings { return c.settings }

// Record feeds the wall-clock duration of the last transaction.
func (c *Calculator) Record(d time.Duration) {
	switch {
	case d < c.settings.LowGoal:
		c.size = c.size + c.size/10 + 1
	case d >= c.outOfRange:
		c.size = c.size / 2
	case d > c.settings.HighGoal:
		c.size = c.size - c.size/10 - 1
	default:
		c.size += c.jitter()
	}
	c.clamp()
}

func (c *Calculator) clamp() {
	if c.size < c.settings.Min {
		c.size = c.settings.Min
	}
	if c.size > c.settings.Max {
		c.size = c.settings.Max
	}
}

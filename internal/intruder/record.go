package intruder

import (
	"encoding/json"
	"time"
)

// Record is the persisted attempt history of one key. First is the first
// attempt of the current episode.
type Record struct {
	Count   uint32    `json:"count"`
	First   time.Time `json:"first"`
	Last    time.Time `json:"last"`
	Alerted bool      `json:"alerted"`
}

func encodeRecord(r Record) ([]byte, error) { return json.Marshal(r) }

func decodeRecord(b []byte) (Record, error) {
	var r Record
	err := json.Unmarshal(b, &r)
	return r, err
}

// age is now - Last, never negative.
func (r Record) age(now time.Time) time.Duration {
	if a := now.Sub(r.Last); a > 0 {
		return a
	}
	return 0
}

// episodeAge is now - First, never negative.
func (r Record) episodeAge(now time.Time) time.Duration {
	if a := now.Sub(r.First); a > 0 {
		return a
	}
	return 0
}

// stale reports whether the record's window has closed.
func (r Record) stale(p Policy, now time.Time) bool {
	return r.age(now) >= p.ResetDuration
}

// IsLocked applies p to r at now: count at or over the threshold and the
// last attempt strictly younger than the reset window.
func IsLocked(r Record, p Policy, now time.Time) bool {
	if !p.Enabled() {
		return false
	}
	return r.Count >= uint32(p.MaxAttempts) && !r.stale(p, now)
}

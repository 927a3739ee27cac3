package eventlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rzbill/warden/pkg/id"
)

// Level is an ordered event severity.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l Level) String() string {
	if l < LevelTrace || l > LevelFatal {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel accepts level names case-insensitively.
func ParseLevel(s string) (Level, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if up == "WARNING" {
		up = "WARN"
	}
	for i, n := range levelNames {
		if n == up {
			return Level(i), nil
		}
	}
	return LevelTrace, fmt.Errorf("eventlog: unknown level %q", s)
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// LogEvent is one application event.
type LogEvent struct {
	ID        id.ID     `json:"id"`
	Timestamp time.Time `json:"ts"`
	Level     Level     `json:"level"`
	Topic     string    `json:"topic"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Cause     string    `json:"cause,omitempty"`
}

// IsUserEvent reports whether an authenticated actor is attached.
func (e LogEvent) IsUserEvent() bool { return e.Actor != "" }

// Compare orders by timestamp, then by ID.
func (e LogEvent) Compare(other LogEvent) int {
	if c := e.Timestamp.Compare(other.Timestamp); c != 0 {
		return c
	}
	return e.ID.Compare(other.ID)
}

// DecodeError reports a stored record that could not be parsed.
type DecodeError struct {
	Seq uint64
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("eventlog: decode record %d: %v", e.Seq, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeEvent serialises an event for storage.
func EncodeEvent(e LogEvent) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent parses a stored event.
func DecodeEvent(b []byte) (LogEvent, error) {
	var e LogEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return LogEvent{}, err
	}
	return e, nil
}

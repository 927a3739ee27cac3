package eventlog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/rzbill/warden/internal/stats"
	"github.com/rzbill/warden/pkg/log"
)

// ErrInvalidFilter is returned when SearchParameters.Filter does not compile.
var ErrInvalidFilter = errors.New("eventlog: invalid filter")

var errNotBool = errors.New("filter must evaluate to bool")

// EventType selects events by presence of an actor.
type EventType int

const (
	EventTypeBoth EventType = iota
	EventTypeUser
	EventTypeSystem
)

// ParseEventType accepts "user", "system", "both" (or empty).
func ParseEventType(s string) (EventType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both", "all":
		return EventTypeBoth, nil
	case "user":
		return EventTypeUser, nil
	case "system":
		return EventTypeSystem, nil
	default:
		return EventTypeBoth, fmt.Errorf("eventlog: unknown event type %q", s)
	}
}

// SearchParameters select stored events. Zero values mean "no filter",
// except MaxQueryTime: zero or negative returns at once without scanning.
type SearchParameters struct {
	MinLevel     Level
	Count        int // <= 0 means unlimited
	Actor        string
	Text         string
	EventType    EventType
	MaxQueryTime time.Duration
	// Filter is an optional CEL boolean expression.
	Filter string
}

// DefaultSearch returns parameters for a typical console query.
func DefaultSearch() SearchParameters {
	return SearchParameters{MinLevel: LevelTrace, Count: 100, MaxQueryTime: 5 * time.Second}
}

// SearchResults carries matches newest first.
type SearchResults struct {
	Events      []LogEvent
	TimeBounded bool
	Scanned     int
	Corrupt     int
	Elapsed     time.Duration
}

type actorMatcher struct {
	exact string
	re    *regexp.Regexp
}

func newActorMatcher(filter string) *actorMatcher {
	if filter == "" {
		return nil
	}
	m := &actorMatcher{exact: filter}
	if re, err := regexp.Compile("^(?:" + filter + ")$"); err == nil {
		m.re = re
	}
	return m
}

func (m *actorMatcher) match(actor string) bool {
	if m == nil {
		return true
	}
	if actor == m.exact {
		return true
	}
	return m.re != nil && m.re.MatchString(actor)
}

// ReadStoredEvents scans stored events from newest to oldest. It stops after
// Count matches, when MaxQueryTime has elapsed, or at the end of the store.
func (s *Service) ReadStoredEvents(ctx context.Context, p SearchParameters) (SearchResults, error) {
	var res SearchResults
	filter, err := newCELFilter(p.Filter)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if p.MaxQueryTime <= 0 {
		res.TimeBounded = true
		return res, nil
	}

	actor := newActorMatcher(p.Actor)
	text := strings.ToLower(p.Text)
	nowMs := s.clock.Now().UnixMilli()

	it, err := s.queue.DescendingIterator()
	if err != nil {
		return res, err
	}
	defer it.Close()

	start := time.Now()
	deadline := start.Add(p.MaxQueryTime)
	for it.Next() {
		if time.Now().After(deadline) {
			res.TimeBounded = true
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++

		entry, err := it.Entry()
		if err != nil {
			res.Corrupt++
			s.noteCorrupt(&DecodeError{Seq: entry.Seq, Err: err})
			continue
		}
		e, err := DecodeEvent(entry.Data)
		if err != nil {
			res.Corrupt++
			s.noteCorrupt(&DecodeError{Seq: entry.Seq, Err: err})
			continue
		}

		if e.Level < p.MinLevel {
			continue
		}
		switch p.EventType {
		case EventTypeUser:
			if !e.IsUserEvent() {
				continue
			}
		case EventTypeSystem:
			if e.IsUserEvent() {
				continue
			}
		}
		if !actor.match(e.Actor) {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(e.Message), text) && !strings.Contains(strings.ToLower(e.Topic), text) {
			continue
		}
		if !filter.Eval(e, nowMs) {
			continue
		}

		res.Events = append(res.Events, e)
		if p.Count > 0 && len(res.Events) >= p.Count {
			break
		}
	}
	if err := it.Err(); err != nil {
		return res, err
	}

	slices.SortStableFunc(res.Events, func(a, b LogEvent) int { return b.Compare(a) })
	res.Elapsed = time.Since(start)
	return res, nil
}

func (s *Service) noteCorrupt(err *DecodeError) {
	s.corrupt.Add(1)
	s.stats.Increment(stats.EventsCorrupt)
	s.decodeWarn.Do(func() {
		s.logger.Warn("skipping undecodable event records", log.Uint64("seq", err.Seq), log.Err(err))
	})
}

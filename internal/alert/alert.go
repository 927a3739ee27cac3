package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/warden/internal/eventlog"
	"github.com/rzbill/warden/internal/intruder"
	"github.com/rzbill/warden/pkg/log"
)

// Topic is the event-log topic lockout events are written under.
const Topic = "intruder"

// LogNotifier logs every lockout at WARN.
type LogNotifier struct {
	logger log.Logger
}

func NewLogNotifier(logger log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithComponent("alert")}
}

func (n *LogNotifier) NotifyLockout(_ context.Context, l intruder.Lockout) error {
	n.logger.Warn("intruder locked out",
		log.Str("dimension", l.Dimension.String()),
		log.Str("key", l.Key),
		log.Uint32("attempts", l.Attempts),
		log.Dur("age", l.Age),
		log.Time("at", l.At))
	return nil
}

// EventWriter is the part of the event log an EventNotifier needs.
type EventWriter interface {
	WriteEvent(e eventlog.LogEvent)
}

// EventNotifier records lockouts in the event log so they show up in
// searches next to the rest of the audit trail.
type EventNotifier struct {
	w EventWriter
}

func NewEventNotifier(w EventWriter) *EventNotifier { return &EventNotifier{w: w} }

func (n *EventNotifier) NotifyLockout(_ context.Context, l intruder.Lockout) error {
	e := eventlog.LogEvent{
		Timestamp: l.At,
		Level:     eventlog.LevelWarn,
		Topic:     Topic,
		Message:   fmt.Sprintf("%s %s locked out after %d failed attempts in %s", l.Dimension, l.Key, l.Attempts, l.Age),
	}
	if l.Dimension == intruder.DimensionAddress {
		e.Source = l.Key
	} else {
		e.Actor = l.Key
	}
	n.w.WriteEvent(e)
	return nil
}

// Multi notifies every wrapped notifier in order.
type Multi []intruder.Notifier

func (m Multi) NotifyLockout(ctx context.Context, l intruder.Lockout) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyLockout(ctx, l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

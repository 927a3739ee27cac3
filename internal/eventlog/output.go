package eventlog

import (
	"fmt"

	"github.com/rzbill/warden/pkg/log"
)

// LogOutput is a log.Output that turns process log entries into stored
// events. Attach it with log.WithOutput or log.ApplyConfig; entries produced
// by the event log's own component are ignored to avoid feeding the service
// its own diagnostics.
type LogOutput struct {
	svc      *Service
	minLevel log.Level
	topic    string
}

// NewLogOutput forwards entries at or above minLevel. Entries without a
// component are stored under defaultTopic.
func NewLogOutput(svc *Service, minLevel log.Level, defaultTopic string) *LogOutput {
	if defaultTopic == "" {
		defaultTopic = "warden"
	}
	return &LogOutput{svc: svc, minLevel: minLevel, topic: defaultTopic}
}

func (o *LogOutput) Write(entry *log.Entry, _ []byte) error {
	if entry == nil || entry.Level < o.minLevel {
		return nil
	}
	topic := o.topic
	if c, ok := entry.Fields[log.ComponentKey].(string); ok && c != "" {
		if c == "eventlog" {
			return nil
		}
		topic = c
	}
	e := LogEvent{
		Timestamp: entry.Timestamp,
		Level:     levelFromLog(entry.Level),
		Topic:     topic,
		Message:   entry.Message,
		Actor:     stringField(entry.Fields, "actor"),
		Source:    stringField(entry.Fields, "source"),
	}
	if entry.Error != nil {
		e.Cause = entry.Error.Error()
	}
	o.svc.WriteEvent(e)
	return nil
}

func (o *LogOutput) Close() error { return nil }

func stringField(f log.Fields, key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func levelFromLog(l log.Level) Level {
	switch l {
	case log.DebugLevel:
		return LevelDebug
	case log.WarnLevel:
		return LevelWarn
	case log.ErrorLevel:
		return LevelError
	case log.FatalLevel:
		return LevelFatal
	default:
		return LevelInfo
	}
}

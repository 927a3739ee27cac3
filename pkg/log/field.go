package log

import "time"

// Field is a single structured key/value pair attached to a log call.
type Field struct {
	Key   string
	Value interface{}
}

func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

func Str(key, value string) Field            { return Field{Key: key, Value: value} }
func Int(key string, value int) Field        { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field    { return Field{Key: key, Value: value} }
func Uint32(key string, value uint32) Field  { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field  { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field      { return Field{Key: key, Value: value} }
func Float64(key string, v float64) Field    { return Field{Key: key, Value: v} }
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Dur records a duration using its String form.
func Dur(key string, d time.Duration) Field { return Field{Key: key, Value: d.String()} }

// Time records t in RFC3339Nano.
func Time(key string, t time.Time) Field { return Field{Key: key, Value: t.Format(time.RFC3339Nano)} }

// Err records err under "error". A nil error yields an empty string value.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err}
}

// Component tags the entry with the originating component.
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }

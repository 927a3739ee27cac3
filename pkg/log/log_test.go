package log

import (
	"bytes"
	"encoding/json"
	"errors"
	stdlog "log"
	"strings"
	"testing"
)

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithLevel(WarnLevel), WithFormatter(&TextFormatter{}), WithOutput(NewWriterOutput(&buf)))
	l.Info("hidden")
	l.Warn("shown", Str("k", "v"))
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line leaked past warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "k=v") {
		t.Fatalf("missing warn line: %q", out)
	}
}

func TestJSONFormatterFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithOutput(NewWriterOutput(&buf))).
		WithComponent("queue").
		With(Int("n", 3))
	l.Error("append failed", Err(errors.New("disk full")))

	var m map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if m["msg"] != "append failed" || m["level"] != "ERROR" {
		t.Fatalf("unexpected entry: %v", m)
	}
	if m["component"] != "queue" || m["error"] != "disk full" || m["n"] != float64(3) {
		t.Fatalf("fields missing: %v", m)
	}
}

func TestChildLoggerDoesNotLeakFields(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(WithFormatter(&TextFormatter{}), WithOutput(NewWriterOutput(&buf)))
	_ = parent.WithField("child", true)
	parent.Info("plain")
	if strings.Contains(buf.String(), "child") {
		t.Fatalf("parent picked up child field: %q", buf.String())
	}
}

func TestApplyConfigRedactsAndParses(t *testing.T) {
	var buf bytes.Buffer
	l, err := ApplyConfig(&Config{Level: "debug", Format: "text", Outputs: []OutputConfig{{Type: "null"}}, Redact: []string{"secret"}}, NewWriterOutput(&buf))
	if err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	l.Debug("login", Str("secret", "hunter2"))
	if strings.Contains(buf.String(), "hunter2") || !strings.Contains(buf.String(), "[REDACTED]") {
		t.Fatalf("secret not redacted: %q", buf.String())
	}

	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestSamplerThinsRepeatedMessages(t *testing.T) {
	var buf bytes.Buffer
	l, err := ApplyConfig(&Config{Format: "text", Outputs: []OutputConfig{{Type: "null"}}, SampleInitial: 2, SampleThereafter: 5}, NewWriterOutput(&buf))
	if err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	for i := 0; i < 12; i++ {
		l.Info("storm")
	}
	// 2 initial, then the 1st and 6th of the remaining 10
	if got := strings.Count(buf.String(), "storm"); got != 4 {
		t.Fatalf("want 4 sampled lines, got %d", got)
	}
}

func TestRedirectStdLog(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithFormatter(&TextFormatter{}), WithOutput(NewWriterOutput(&buf)))
	restore := RedirectStdLog(l)
	stdlog.Printf("from pebble %d", 7)
	restore()
	if !strings.Contains(buf.String(), "from pebble 7") {
		t.Fatalf("std log not redirected: %q", buf.String())
	}
}

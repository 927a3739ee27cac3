package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rzbill/warden/pkg/log"
)

// ConfigError names one rejected setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e ConfigError) Error() string { return e.Field + ": " + e.Reason }

// Validate checks cfg, repairing what it rejects. An invalid lockout
// dimension is disabled rather than failing startup; other bad values fall
// back to their defaults. The returned errors say what was changed.
func (cfg *Config) Validate() []ConfigError {
	var errs []ConfigError
	add := func(field, format string, args ...any) {
		errs = append(errs, ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}
	d := Default()

	for _, dim := range []struct {
		name string
		p    *PolicyConfig
	}{{"intruder.user", &cfg.Intruder.User}, {"intruder.address", &cfg.Intruder.Address}} {
		name, p := dim.name, dim.p
		switch {
		case p.ResetMs < 0 || p.MaxAttempts < 0:
			add(name, "negative values (resetMs=%d maxAttempts=%d); dimension disabled", p.ResetMs, p.MaxAttempts)
			*p = PolicyConfig{}
		case (p.ResetMs == 0) != (p.MaxAttempts == 0):
			add(name, "resetMs and maxAttempts must both be set; dimension disabled")
			*p = PolicyConfig{}
		}
	}
	if cfg.Intruder.MaxRecordAgeMs < 0 {
		add("intruder.maxRecordAgeMs", "must not be negative")
		cfg.Intruder.MaxRecordAgeMs = d.Intruder.MaxRecordAgeMs
	}
	if cfg.Intruder.CleanupThreshold < 0 {
		add("intruder.cleanupThreshold", "must not be negative")
		cfg.Intruder.CleanupThreshold = d.Intruder.CleanupThreshold
	}

	if cfg.EventLog.MaxEvents < 0 {
		add("eventLog.maxEvents", "must not be negative")
		cfg.EventLog.MaxEvents = d.EventLog.MaxEvents
	}
	if cfg.EventLog.TxMin < 0 || cfg.EventLog.TxMax < 0 || (cfg.EventLog.TxMax > 0 && cfg.EventLog.TxMin > cfg.EventLog.TxMax) {
		add("eventLog.txMin", "invalid transaction bounds %d..%d", cfg.EventLog.TxMin, cfg.EventLog.TxMax)
		cfg.EventLog.TxMin, cfg.EventLog.TxMax = d.EventLog.TxMin, d.EventLog.TxMax
	}
	if cfg.EventLog.TxLowGoalMs < 0 || cfg.EventLog.TxHighGoalMs < cfg.EventLog.TxLowGoalMs {
		add("eventLog.txLowGoalMs", "invalid latency goals %dms..%dms", cfg.EventLog.TxLowGoalMs, cfg.EventLog.TxHighGoalMs)
		cfg.EventLog.TxLowGoalMs, cfg.EventLog.TxHighGoalMs = d.EventLog.TxLowGoalMs, d.EventLog.TxHighGoalMs
	}
	if cfg.EventLog.MinLevel != "" && !validEventLevel(cfg.EventLog.MinLevel) {
		add("eventLog.minLevel", "unknown level %q", cfg.EventLog.MinLevel)
		cfg.EventLog.MinLevel = d.EventLog.MinLevel
	}

	switch strings.ToLower(cfg.Fsync) {
	case "", "always", "interval", "never":
	default:
		add("fsync", "unknown mode %q", cfg.Fsync)
		cfg.Fsync = d.Fsync
	}

	if cfg.HTTPRateLimit < 0 {
		add("httpRateLimit", "must not be negative")
		cfg.HTTPRateLimit = 0
	}

	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		add("log.level", "%v", err)
		cfg.Log.Level = d.Log.Level
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "json", "text":
	default:
		add("log.format", "unknown format %q", cfg.Log.Format)
		cfg.Log.Format = d.Log.Format
	}

	if cfg.Alerts.WebhookURL != "" {
		u, err := url.Parse(cfg.Alerts.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("alerts.webhookUrl", "not an http(s) URL; webhook disabled")
			cfg.Alerts.WebhookURL = ""
		}
	}
	return errs
}

func validEventLevel(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL":
		return true
	}
	return false
}

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv reads KEY=VALUE pairs from the given files (".env" when none)
// into the process environment without overriding variables already set.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// FromEnv overlays WARDEN_* environment variables onto cfg. Unparseable
// values are ignored.
func FromEnv(cfg *Config) {
	str("WARDEN_DATA_DIR", &cfg.DataDir)
	str("WARDEN_HTTP_ADDR", &cfg.HTTPAddr)
	str("WARDEN_FSYNC", &cfg.Fsync)
	i64("WARDEN_FSYNC_INTERVAL_MS", &cfg.FsyncIntervalMs)
	integer("WARDEN_HTTP_RATE_LIMIT", &cfg.HTTPRateLimit)

	i64("WARDEN_INTRUDER_USER_RESET_MS", &cfg.Intruder.User.ResetMs)
	integer("WARDEN_INTRUDER_USER_MAX_ATTEMPTS", &cfg.Intruder.User.MaxAttempts)
	i64("WARDEN_INTRUDER_ADDRESS_RESET_MS", &cfg.Intruder.Address.ResetMs)
	integer("WARDEN_INTRUDER_ADDRESS_MAX_ATTEMPTS", &cfg.Intruder.Address.MaxAttempts)
	i64("WARDEN_INTRUDER_MAX_RECORD_AGE_MS", &cfg.Intruder.MaxRecordAgeMs)
	integer("WARDEN_INTRUDER_CLEANUP_THRESHOLD", &cfg.Intruder.CleanupThreshold)

	integer("WARDEN_EVENTLOG_MAX_EVENTS", &cfg.EventLog.MaxEvents)
	i64("WARDEN_EVENTLOG_MAX_AGE_MS", &cfg.EventLog.MaxAgeMs)
	integer("WARDEN_EVENTLOG_BUFFER_SIZE", &cfg.EventLog.BufferSize)
	i64("WARDEN_EVENTLOG_MAX_QUERY_MS", &cfg.EventLog.MaxQueryMs)
	str("WARDEN_EVENTLOG_MIN_LEVEL", &cfg.EventLog.MinLevel)

	boolean("WARDEN_ALERTS_LOG", &cfg.Alerts.Log)
	boolean("WARDEN_ALERTS_EVENTLOG", &cfg.Alerts.EventLog)
	str("WARDEN_ALERTS_WEBHOOK_URL", &cfg.Alerts.WebhookURL)

	str("WARDEN_LOG_LEVEL", &cfg.Log.Level)
	str("WARDEN_LOG_FORMAT", &cfg.Log.Format)
	if v := os.Getenv("WARDEN_LOG_REDACT"); v != "" {
		cfg.Log.Redact = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Log.Redact = append(cfg.Log.Redact, p)
			}
		}
	}
}

func str(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func integer(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func i64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func boolean(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

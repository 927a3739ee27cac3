package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rzbill/warden/pkg/log"
)

// Config is the top-level configuration loaded from file/env. Durations are
// carried as millisecond integers.
type Config struct {
	DataDir         string `json:"dataDir" yaml:"dataDir"`
	HTTPAddr        string `json:"httpAddr" yaml:"httpAddr"`
	Fsync           string `json:"fsync" yaml:"fsync"`
	FsyncIntervalMs int64  `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`
	// HTTPRateLimit caps admin API requests per minute per client IP.
	// Zero disables the limit.
	HTTPRateLimit int `json:"httpRateLimit" yaml:"httpRateLimit"`

	Intruder IntruderConfig `json:"intruder" yaml:"intruder"`
	EventLog EventLogConfig `json:"eventLog" yaml:"eventLog"`
	Alerts   AlertConfig    `json:"alerts" yaml:"alerts"`
	Log      log.Config     `json:"log" yaml:"log"`
}

// PolicyConfig is one lockout dimension. A zero field disables it.
type PolicyConfig struct {
	ResetMs     int64 `json:"resetMs" yaml:"resetMs"`
	MaxAttempts int   `json:"maxAttempts" yaml:"maxAttempts"`
}

// Enabled reports whether both fields are set.
func (p PolicyConfig) Enabled() bool { return p.ResetMs > 0 && p.MaxAttempts > 0 }

// IntruderConfig configures lockout tracking.
type IntruderConfig struct {
	User             PolicyConfig `json:"user" yaml:"user"`
	Address          PolicyConfig `json:"address" yaml:"address"`
	MaxRecordAgeMs   int64        `json:"maxRecordAgeMs" yaml:"maxRecordAgeMs"`
	CleanupThreshold int          `json:"cleanupThreshold" yaml:"cleanupThreshold"`
	AlertTimeoutMs   int64        `json:"alertTimeoutMs" yaml:"alertTimeoutMs"`
}

// EventLogConfig configures the durable event log.
type EventLogConfig struct {
	// MaxEvents of zero disables the event log and clears its history.
	MaxEvents     int    `json:"maxEvents" yaml:"maxEvents"`
	MaxAgeMs      int64  `json:"maxAgeMs" yaml:"maxAgeMs"`
	BufferSize    int    `json:"bufferSize" yaml:"bufferSize"`
	BufferWaitMs  int64  `json:"bufferWaitMs" yaml:"bufferWaitMs"`
	MaxEventBytes int    `json:"maxEventBytes" yaml:"maxEventBytes"`
	MaxQueryMs    int64  `json:"maxQueryMs" yaml:"maxQueryMs"`
	MinLevel      string `json:"minLevel" yaml:"minLevel"`

	TxLowGoalMs  int64 `json:"txLowGoalMs" yaml:"txLowGoalMs"`
	TxHighGoalMs int64 `json:"txHighGoalMs" yaml:"txHighGoalMs"`
	TxMin        int   `json:"txMin" yaml:"txMin"`
	TxMax        int   `json:"txMax" yaml:"txMax"`
}

// AlertConfig selects lockout notifiers.
type AlertConfig struct {
	Log      bool `json:"log" yaml:"log"`
	EventLog bool `json:"eventLog" yaml:"eventLog"`

	WebhookURL       string            `json:"webhookUrl,omitempty" yaml:"webhookUrl,omitempty"`
	WebhookHeaders   map[string]string `json:"webhookHeaders,omitempty" yaml:"webhookHeaders,omitempty"`
	WebhookTimeoutMs int64             `json:"webhookTimeoutMs,omitempty" yaml:"webhookTimeoutMs,omitempty"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:         DefaultDataDir(),
		HTTPAddr:        ":8080",
		Fsync:           "interval",
		FsyncIntervalMs: 5,
		Intruder: IntruderConfig{
			User:             PolicyConfig{ResetMs: 15 * 60 * 1000, MaxAttempts: 5},
			Address:          PolicyConfig{ResetMs: 15 * 60 * 1000, MaxAttempts: 20},
			MaxRecordAgeMs:   24 * 60 * 60 * 1000,
			CleanupThreshold: 1000,
			AlertTimeoutMs:   10_000,
		},
		EventLog: EventLogConfig{
			MaxEvents:     10_000,
			MaxAgeMs:      30 * 24 * 60 * 60 * 1000,
			BufferSize:    10_000,
			BufferWaitMs:  30_000,
			MaxEventBytes: 64 << 10,
			MaxQueryMs:    30_000,
			MinLevel:      "INFO",
			TxLowGoalMs:   25,
			TxHighGoalMs:  75,
			TxMin:         1,
			TxMax:         1000,
		},
		Alerts: AlertConfig{Log: true, EventLog: true},
		Log:    log.Config{Level: "info", Format: "json"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top
// of the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	return cfg, nil
}

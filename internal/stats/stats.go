// Package stats is the statistics sink shared by the lockout and event log
// services. Calls are fire-and-forget.
package stats

// Statistic names a monotonically increasing counter.
type Statistic string

const (
	FailedLogins            Statistic = "FAILED_LOGINS"
	IntruderUserLockouts    Statistic = "INTRUDER_USER_LOCKOUTS"
	IntruderAddressLockouts Statistic = "INTRUDER_ADDRESS_LOCKOUTS"
	IntruderStorageErrors   Statistic = "INTRUDER_STORAGE_ERRORS"
	IntruderRecordsCleaned  Statistic = "INTRUDER_RECORDS_CLEANED"
	AlertFailures           Statistic = "ALERT_FAILURES"
	EventsWritten           Statistic = "EVENTS_WRITTEN"
	EventsDropped           Statistic = "EVENTS_DROPPED"
	EventsTrimmed           Statistic = "EVENTS_TRIMMED"
	EventsCorrupt           Statistic = "EVENTS_CORRUPT"
	EventLogStorageErrors   Statistic = "EVENTLOG_STORAGE_ERRORS"
)

// EventRate names an activity whose rate is tracked.
type EventRate string

const (
	RateIntruderAttempts EventRate = "INTRUDER_ATTEMPTS"
	RateLogEvents        EventRate = "LOG_EVENTS"
)

// Gauge names a point-in-time value.
type Gauge string

const (
	GaugeLockedUsers     Gauge = "LOCKED_USERS"
	GaugeLockedAddresses Gauge = "LOCKED_ADDRESSES"
	GaugeEventBuffer     Gauge = "EVENT_BUFFER"
	GaugeStoredEvents    Gauge = "STORED_EVENTS"
)

// Sink receives statistics.
type Sink interface {
	Increment(s Statistic)
	Add(s Statistic, delta int64)
	UpdateEventRate(r EventRate)
	SetGauge(g Gauge, v float64)
}

// Noop discards everything.
type Noop struct{}

func (Noop) Increment(Statistic)       {}
func (Noop) Add(Statistic, int64)      {}
func (Noop) UpdateEventRate(EventRate) {}
func (Noop) SetGauge(Gauge, float64)   {}

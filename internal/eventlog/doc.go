// Package eventlog buffers structured log events in memory, writes them to a
// durable queue in adaptively sized batches, enforces count and age retention,
// and serves filtered searches over the stored history.
//
// # Lifecycle
//
// A Service moves NEW -> OPENING -> OPEN -> CLOSED. Open verifies the backing
// queue and starts a single writer goroutine. Close stops intake, waits a
// bounded time for the writer, then flushes what is left synchronously.
// Events that still cannot be written are reported on stderr, never through
// the service itself.
//
// # Writing
//
// WriteEvent never returns an error and never blocks longer than
// Settings.BufferWait. Events are dropped when the service is not OPEN or the
// buffer stays full.
//
// # Searching
//
//	res, err := svc.ReadStoredEvents(ctx, eventlog.SearchParameters{
//	    MinLevel:     eventlog.LevelWarn,
//	    Count:        50,
//	    Actor:        "adm.*",
//	    MaxQueryTime: 2 * time.Second,
//	    Filter:       `topic == "auth" && now_ms - ts_ms < 3600000`,
//	})
//
// Results are newest first. TimeBounded reports that the scan stopped on the
// time budget rather than on Count or the end of the store.
package eventlog

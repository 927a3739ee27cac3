// Package id generates the identifiers stamped on event log entries.
//
// An ID is 16 bytes: the big-endian millisecond timestamp followed by a
// big-endian sequence. Byte order therefore matches creation order, which is
// what lets a search report events newest first without a secondary sort key.
//
// A Generator never goes backwards within a process. When the clock
// regresses it keeps the last millisecond and bumps the sequence, and when a
// millisecond's sequence space runs out it waits for the clock to advance.
//
//	g := id.NewGenerator(clockwork.NewRealClock())
//	evID := g.Next()
//	_ = evID.String() // 32 hex characters, also the JSON form
package id

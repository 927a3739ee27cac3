// Package runtime wires storage, config, and services into a single-node
// Warden instance. It opens one Pebble store shared by the event log and the
// intruder lockout service, selects alert notifiers from configuration, and
// exposes aggregate health.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(ctx)
//	rt.EventLog().WriteEvent(eventlog.LogEvent{Level: eventlog.LevelInfo, Topic: "auth", Message: "hello"})
//	if err := rt.Intruder().CheckUsernameLocked(ctx, "alice"); err != nil { /* deny */ }
package runtime

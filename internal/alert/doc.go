// Package alert delivers intruder lockout notifications.
//
// Every notifier implements intruder.Notifier. LogNotifier writes a WARN
// line, EventNotifier appends a WARN event to the event log and
// WebhookNotifier POSTs JSON to an HTTP endpoint behind a circuit breaker.
// Multi fans a lockout out to several notifiers and joins their errors.
package alert

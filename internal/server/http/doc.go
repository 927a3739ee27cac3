// Package httpserver provides the Warden admin REST API: health, Prometheus
// metrics, event log writes and searches, and intruder lockout checks and
// administration. Routes are served by a chi router.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: "./data", Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver

// Package config provides loading, environment overlay and validation for
// Warden configuration. It exposes a Default() baseline which Load, FromEnv
// and Validate refine before the runtime is opened.
//
// Example:
//
//	_ = config.LoadDotEnv()
//	cfg, err := config.Load("/etc/warden.yaml")
//	if err != nil { /* handle */ }
//	config.FromEnv(&cfg)
//	for _, e := range cfg.Validate() {
//	    logger.Warn("config", log.Str("field", e.Field), log.Str("reason", e.Reason))
//	}
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	defer rt.Close()
package config

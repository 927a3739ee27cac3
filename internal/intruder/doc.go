// Package intruder turns failed authentication attempts into lockout
// decisions.
//
// Attempts are tracked independently per username and per source address.
// Each dimension has its own Policy; a key is locked while its attempt count
// is at or above MaxAttempts and its most recent attempt is younger than
// ResetDuration. A record whose age equals ResetDuration is stale: it no
// longer locks, and the next attempt restarts the count at one.
//
// Storage failures fail open. They are logged, counted and reported by
// Health, but never turn into a lockout or an error on the tracking path.
//
// Usage
//
//	svc := intruder.New(store, intruder.WithSettings(settings), intruder.WithNotifier(n))
//	_ = svc.Open(ctx)
//	defer svc.Close()
//
//	if err := svc.CheckUsernameLocked(ctx, user); err != nil {
//	    return err // *intruder.LockedOutError
//	}
//	if !passwordOK {
//	    svc.RecordFailedAttempt(ctx, session, user, remoteAddr)
//	} else {
//	    svc.RecordSuccessfulAttempt(ctx, user)
//	}
package intruder

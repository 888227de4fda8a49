// Package retry provides the retry loop used to re-establish lost connections.
//
// # Overview
//
// Do runs a function until it succeeds. Between attempts it waits a delay that
// starts at InitialDelay and is multiplied by Multiplier after each attempt, up
// to MaxDelay. A MaxAttempts of zero or less retries forever, which is what an
// unattended collector wants: the instrument may come back at any time.
//
// # Configuration Presets
//
//   - Fixed(d): unlimited attempts, exactly d between attempts
//
// # Usage
//
// Reconnect loop:
//
//	cfg := retry.Fixed(10 * time.Second)
//	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
//	    logger.Warn("connection lost, reconnecting", "attempt", attempt, "error", err, "delay", delay)
//	}
//	err := retry.Do(ctx, cfg, func() error {
//	    return session(ctx)
//	})
//
// Stopping the loop from inside fn:
//
//	if errors.IsUnrecoverable(err) {
//	    return retry.NonRetryable(err)
//	}
//
// # Cancellation
//
// Do checks ctx after every failed attempt and while waiting, so cancelling the
// context ends an unlimited loop within one attempt.
package retry

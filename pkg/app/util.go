package app

import "time"

// nextDelay returns the time until the next multiple of interval, so polls land on
// round wall clock times.
func nextDelay(interval time.Duration) time.Duration {
	now := time.Now()
	next := now.Truncate(interval).Add(interval)
	return next.Sub(now)
}

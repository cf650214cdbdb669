package control

import "time"

// CooldownElapsed reports whether at least window has passed since lastChangedAt.
func CooldownElapsed(now, lastChangedAt time.Time, window time.Duration) bool {
	return now.Sub(lastChangedAt) >= window
}

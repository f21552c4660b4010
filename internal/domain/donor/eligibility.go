package donor

import (
	"time"

	"github.com/bloodlink/donor-hub/pkg/timeutil"
)

// CooldownDays is the minimum number of whole days between donations.
const CooldownDays = 90

// IsEligible reports whether a donor whose last donation happened at last
// may donate at now. A nil last means the donor has never donated.
func IsEligible(last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	return timeutil.ElapsedDays(*last, now) >= CooldownDays
}

// DaysUntilEligible returns how many whole days remain in the cooldown.
// It is 0 exactly when IsEligible returns true.
func DaysUntilEligible(last *time.Time, now time.Time) int {
	if last == nil {
		return 0
	}
	remaining := CooldownDays - timeutil.ElapsedDays(*last, now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CooldownCutoff is the latest last-donation instant still eligible at now.
// IsEligible(last, now) == last.Before(cutoff) || last.Equal(cutoff).
func CooldownCutoff(now time.Time) time.Time {
	return timeutil.AddDays(now, -CooldownDays)
}

// RestoredWindow returns the half-open interval (from, to] of last-donation
// timestamps whose cooldown ended during the window ending at now.
// Donors in that interval became eligible since now-window.
func RestoredWindow(now time.Time, window time.Duration) (from, to time.Time) {
	to = CooldownCutoff(now)
	from = to.Add(-window)
	return from, to
}

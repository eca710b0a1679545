// Package window implements time-of-day scheduling windows for accounts.
//
// A window is a pair of hours [start, end). start != end is a timed window,
// wrapping past midnight when end < start. start == end != 0 marks an
// always-on account. start == end == 0 disables the account's schedule.
package window

import (
	"fmt"
	"time"

	"github.com/fentz26/drover/internal/models"
)

// ErrOverlappingWindows is returned by Validate when two timed windows on the
// same device can match the same hour.
var ErrOverlappingWindows = fmt.Errorf("overlapping account windows")

// Windowed reports whether the pair describes a timed window.
func Windowed(start, end int) bool { return start != end }

// AlwaysOn reports whether the pair describes an always-eligible account.
func AlwaysOn(start, end int) bool { return start == end && start != 0 }

// Disabled reports whether the pair disables the schedule entirely.
func Disabled(start, end int) bool { return start == 0 && end == 0 }

// Matches reports whether the given hour falls inside a timed window,
// honoring the midnight wrap.
func Matches(start, end, hour int) bool {
	if !Windowed(start, end) {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	// Wrapping window, e.g. 22..4 covers 22,23,0,1,2,3.
	return hour >= start || hour < end
}

// Eligible reports whether an account with the given window may run at the
// given hour, regardless of other accounts.
func Eligible(start, end, hour int) bool {
	if Disabled(start, end) {
		return false
	}
	if AlwaysOn(start, end) {
		return true
	}
	return Matches(start, end, hour)
}

// ResolveCurrent picks the account that should run now. Only status=active
// accounts are considered. A timed window matching the current hour beats any
// always-on account; with no timed match the first always-on account wins.
// Returns nil when nothing is eligible.
func ResolveCurrent(accounts []models.Account, now time.Time) *models.Account {
	hour := now.Hour()

	var fallback *models.Account
	for i := range accounts {
		acc := &accounts[i]
		if acc.Status != models.AccountStatusActive {
			continue
		}
		if Windowed(acc.WindowStart, acc.WindowEnd) {
			if Matches(acc.WindowStart, acc.WindowEnd, hour) {
				return acc
			}
			continue
		}
		if AlwaysOn(acc.WindowStart, acc.WindowEnd) && fallback == nil {
			fallback = acc
		}
	}
	return fallback
}

// Validate rejects configurations where two active timed windows on the same
// device could both match one hour. Overlap would make the current-account
// resolution ambiguous, so it is refused up front instead of resolved by
// incidental ordering.
func Validate(accounts []models.Account) error {
	var timed []*models.Account
	for i := range accounts {
		acc := &accounts[i]
		if acc.Status != models.AccountStatusActive {
			continue
		}
		if Windowed(acc.WindowStart, acc.WindowEnd) {
			timed = append(timed, acc)
		}
	}

	for i := 0; i < len(timed); i++ {
		for j := i + 1; j < len(timed); j++ {
			a, b := timed[i], timed[j]
			for hour := 0; hour < 24; hour++ {
				if Matches(a.WindowStart, a.WindowEnd, hour) && Matches(b.WindowStart, b.WindowEnd, hour) {
					return fmt.Errorf("%w: %s [%d,%d) and %s [%d,%d) both match hour %d",
						ErrOverlappingWindows,
						a.Username, a.WindowStart, a.WindowEnd,
						b.Username, b.WindowStart, b.WindowEnd, hour)
				}
			}
		}
	}
	return nil
}

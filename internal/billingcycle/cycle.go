package billingcycle

import "time"

// CycleEnd returns the current billing-cycle boundary: midnight UTC on the
// first day of the next calendar month. Proration and next-payment dates are
// always anchored here, never to a subscription's stored end date.
func CycleEnd(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// DaysRemaining returns the number of whole days until the cycle boundary,
// rounded up. Never less than 1, so a change on the last day of the month
// still prorates one day.
func DaysRemaining(now time.Time) int {
	remaining := CycleEnd(now).Sub(now.UTC())
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}

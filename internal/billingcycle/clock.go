package billingcycle

import (
	"context"
	"time"
)

// Clock abstracts the current time so cycle math is testable.
type Clock interface {
	Now(ctx context.Context) time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now(ctx context.Context) time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant. Test helper.
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now(ctx context.Context) time.Time {
	return c.Instant
}

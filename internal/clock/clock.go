package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock is the time source for every service. Business dates (reversal date,
// sync windows, OAuth state expiry) are derived from it.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// Today truncates now to midnight UTC.
func Today(c Clock) time.Time {
	now := c.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

var Module = fx.Module("clock",
	fx.Provide(New),
)

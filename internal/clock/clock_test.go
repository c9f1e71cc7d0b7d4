package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTodayTruncatesToUTCMidnight(t *testing.T) {
	c := NewFakeClock(time.Date(2025, 3, 1, 23, 59, 0, 0, time.FixedZone("CET", 3600)))
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Today(c))

	c.Advance(2 * time.Minute)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Today(c))

	c.Set(time.Date(2025, 3, 2, 0, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), Today(c))
}

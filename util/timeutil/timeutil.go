package timeutil

import (
	"time"
)

// Time provides the current time. It exists so that auction code which
// stamps timestamps can be tested against a fixed clock.
type Time interface {
	Now() time.Time
}

// RealTime reads the system clock.
type RealTime struct{}

func (c *RealTime) Now() time.Time {
	return time.Now()
}

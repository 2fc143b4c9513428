package service

import "time"

// Clock returns the current time. Stored timestamps are UTC with microsecond
// precision so they compare the same way on every supported database.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

package ports

import "time"

// Clock abstracts wall time so schedules and backoff can be driven in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

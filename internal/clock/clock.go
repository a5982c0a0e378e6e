package clock

import "time"

// Clock supplies the current time. Checkout and import both stamp records
// with "now", so the clock is injected to keep those paths deterministic
// under test.
type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed always reports the same instant.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time { return f.At }

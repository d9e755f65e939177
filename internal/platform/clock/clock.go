// Package clock provides the time source used to stamp bookings and templates.
//
// The deployed clinic runs in a single fixed UTC offset, so "now" is always
// reported in that zone rather than the host's local zone.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// Zoned is a wall clock pinned to a fixed UTC offset.
type Zoned struct {
	loc *time.Location
}

// NewZoned returns a Clock that reports time.Now in a zone offsetHours east of UTC.
func NewZoned(offsetHours int) *Zoned {
	name := fmt.Sprintf("UTC%+d", offsetHours)
	return &Zoned{loc: time.FixedZone(name, offsetHours*3600)}
}

func (z *Zoned) Now() time.Time { return time.Now().In(z.loc) }

// Location returns the fixed zone used by the clock.
func (z *Zoned) Location() *time.Location { return z.loc }

// Fixed is a manually advanced clock for tests.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixed(t time.Time) *Fixed { return &Fixed{now: t} }

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set pins the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

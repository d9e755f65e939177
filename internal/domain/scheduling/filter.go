package scheduling

import "cloud.google.com/go/civil"

// BlockingPolicy decides which booking statuses keep a slot off the market.
// Booked and Completed always block; Cancelled and Rescheduled never do.
type BlockingPolicy struct {
	BlockOnOngoing bool
}

// DefaultBlockingPolicy treats an in-progress consultation as occupying its slot.
var DefaultBlockingPolicy = BlockingPolicy{BlockOnOngoing: true}

func (p BlockingPolicy) Blocks(s Status) bool {
	switch s {
	case StatusBooked, StatusCompleted:
		return true
	case StatusOngoing:
		return p.BlockOnOngoing
	}
	return false
}

// Filter removes every candidate taken by a blocking booking on date. Order is
// preserved and nothing is added.
func Filter(candidates []Slot, existing []*Booking, date civil.Date, policy BlockingPolicy) []Slot {
	day := WeekdayOf(date)
	taken := make(map[Slot]bool)
	for _, b := range existing {
		if b == nil || b.DateRange.StartDate != date || b.Weekday != day {
			continue
		}
		if !policy.Blocks(b.Status) {
			continue
		}
		taken[NormalizeSlot(b.TimeSlot)] = true
	}

	out := make([]Slot, 0, len(candidates))
	for _, c := range candidates {
		if taken[NormalizeSlot(c)] {
			continue
		}
		out = append(out, c)
	}
	return out
}

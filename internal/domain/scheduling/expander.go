package scheduling

import (
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
)

const minutesPerDay = 24 * 60

// RemainderPolicy decides what happens to the tail of a window shorter than
// one slot.
type RemainderPolicy int

const (
	// DropRemainder discards a trailing partial slot.
	DropRemainder RemainderPolicy = iota
)

// Expand returns the candidate slots a template offers on date, in window
// order and chronological order within each window.
func Expand(t *Template, date civil.Date) []Slot {
	return ExpandWithPolicy(t, date, DropRemainder)
}

func ExpandWithPolicy(t *Template, date civil.Date, _ RemainderPolicy) []Slot {
	if t == nil || t.SlotDurationMinutes <= 0 {
		return nil
	}
	if !t.ActiveRange.Contains(date) {
		return nil
	}
	for _, p := range t.ExcludedPeriods {
		if p.Covers(date) {
			return nil
		}
	}

	windows, ok := t.WeeklySchedule[WeekdayOf(date)].Windows()
	if !ok {
		return nil
	}

	d := t.SlotDurationMinutes
	var slots []Slot
	for _, w := range windows {
		start, err := ParseClock(w.StartTime)
		if err != nil {
			continue
		}
		end, err := ParseClock(w.EndTime)
		if err != nil || end <= start {
			continue
		}
		for m := start; m+d <= end; m += d {
			slots = append(slots, Slot{StartTime: FormatClock(m), EndTime: FormatClock(m + d)})
		}
	}
	return slots
}

// ExpandRange expands every date in [from, to].
func ExpandRange(t *Template, from, to civil.Date) []DaySlots {
	var out []DaySlots
	for d := from; !d.After(to); d = d.AddDays(1) {
		out = append(out, DaySlots{Date: d, Day: WeekdayOf(d), Slots: Expand(t, d)})
	}
	return out
}

// ParseClock converts "H:MM" or "HH:MM" into minutes since midnight. "24:00"
// is accepted as the end of the day.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(m) != 2 || len(h) == 0 || len(h) > 2 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	if hours < 0 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	total := hours*60 + minutes
	if total > minutesPerDay {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return total, nil
}

// FormatClock renders minutes since midnight as zero-padded "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeSlot re-renders both bounds as zero-padded "HH:MM". Inputs that do
// not parse are returned unchanged.
func NormalizeSlot(s Slot) Slot {
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return s
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return s
	}
	return Slot{StartTime: FormatClock(start), EndTime: FormatClock(end)}
}

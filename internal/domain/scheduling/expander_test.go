package scheduling

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

// monday is 2024-03-04.
var monday = date(2024, time.March, 4)

func mondayTemplate(duration int, windows ...TimeWindow) *Template {
	return &Template{
		DoctorID:            "doc-1",
		SlotDurationMinutes: duration,
		ActiveRange:         DateRange{StartDate: date(2024, time.March, 1), EndDate: date(2024, time.March, 31)},
		WeeklySchedule: WeeklySchedule{
			Monday:    Available(windows...),
			Tuesday:   Unavailable(),
			Wednesday: Available(windows...),
		},
	}
}

func slots(pairs ...string) []Slot {
	out := make([]Slot, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Slot{StartTime: pairs[i], EndTime: pairs[i+1]})
	}
	return out
}

func assertSlots(t *testing.T, got, want []Slot) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d slots %v, got %d %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slot[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestExpand_ExactFit(t *testing.T) {
	tpl := mondayTemplate(20, TimeWindow{StartTime: "09:00", EndTime: "10:00"})
	assertSlots(t, Expand(tpl, monday), slots("09:00", "09:20", "09:20", "09:40", "09:40", "10:00"))
}

func TestExpand_DropsRemainder(t *testing.T) {
	tpl := mondayTemplate(30, TimeWindow{StartTime: "09:00", EndTime: "10:15"})
	assertSlots(t, Expand(tpl, monday), slots("09:00", "09:30", "09:30", "10:00"))
}

func TestExpand_SingleExclusion(t *testing.T) {
	tpl := mondayTemplate(20, TimeWindow{StartTime: "09:00", EndTime: "10:00"})
	tpl.ExcludedPeriods = []ExcludedPeriod{{StartDate: monday, EndDate: monday, Kind: ExclusionSingle}}
	if got := Expand(tpl, monday); len(got) != 0 {
		t.Errorf("expected no slots on excluded date, got %v", got)
	}
	if got := Expand(tpl, monday.AddDays(7)); len(got) != 3 {
		t.Errorf("exclusion must not leak to next week, got %v", got)
	}
}

func TestExpand_RangeExclusion(t *testing.T) {
	tpl := mondayTemplate(20, TimeWindow{StartTime: "09:00", EndTime: "10:00"})
	tpl.ExcludedPeriods = []ExcludedPeriod{{StartDate: monday.AddDays(-2), EndDate: monday.AddDays(2), Kind: ExclusionRange}}
	if got := Expand(tpl, monday); len(got) != 0 {
		t.Errorf("expected no slots inside range exclusion, got %v", got)
	}
	if got := Expand(tpl, monday.AddDays(2)); len(got) != 0 {
		t.Errorf("range exclusion end bound is inclusive, got %v", got)
	}
}

func TestExpand_OutsideActiveRange(t *testing.T) {
	tpl := mondayTemplate(20, TimeWindow{StartTime: "09:00", EndTime: "10:00"})
	for _, d := range []civil.Date{date(2024, time.February, 26), date(2024, time.April, 1)} {
		if got := Expand(tpl, d); len(got) != 0 {
			t.Errorf("expected no slots on %s outside active range, got %v", d, got)
		}
	}
	tpl.ActiveRange = DateRange{StartDate: monday, EndDate: monday}
	if got := Expand(tpl, monday); len(got) != 3 {
		t.Errorf("active range bounds are inclusive, got %v", got)
	}
}

func TestExpand_UnavailableOrMissingDay(t *testing.T) {
	tpl := mondayTemplate(20, TimeWindow{StartTime: "09:00", EndTime: "10:00"})
	if got := Expand(tpl, monday.AddDays(1)); len(got) != 0 {
		t.Errorf("expected no slots on unavailable TUE, got %v", got)
	}
	if got := Expand(tpl, monday.AddDays(3)); len(got) != 0 {
		t.Errorf("expected no slots on missing THU, got %v", got)
	}
}

func TestExpand_DegenerateInputs(t *testing.T) {
	if got := Expand(nil, monday); got != nil {
		t.Errorf("expected nil for nil template, got %v", got)
	}
	for _, d := range []int{0, -15} {
		tpl := mondayTemplate(d, TimeWindow{StartTime: "09:00", EndTime: "10:00"})
		if got := Expand(tpl, monday); len(got) != 0 {
			t.Errorf("duration %d: expected no slots, got %v", d, got)
		}
	}

	tpl := mondayTemplate(20,
		TimeWindow{StartTime: "10:00", EndTime: "09:00"},
		TimeWindow{StartTime: "nine", EndTime: "10:00"},
		TimeWindow{StartTime: "09:00", EndTime: "09:00"},
		TimeWindow{StartTime: "13:00", EndTime: "13:10"},
		TimeWindow{StartTime: "14:00", EndTime: "14:20"},
	)
	assertSlots(t, Expand(tpl, monday), slots("14:00", "14:20"))
}

func TestExpand_MultipleWindowsKeepOrder(t *testing.T) {
	tpl := mondayTemplate(30,
		TimeWindow{StartTime: "14:00", EndTime: "15:00"},
		TimeWindow{StartTime: "9:00", EndTime: "10:00"},
	)
	assertSlots(t, Expand(tpl, monday), slots("14:00", "14:30", "14:30", "15:00", "09:00", "09:30", "09:30", "10:00"))
}

func TestExpand_SlotCountProperty(t *testing.T) {
	for _, k := range []int{5, 7, 15, 20, 25, 45, 60, 90} {
		for _, span := range []int{0, 10, 59, 60, 61, 135, 480} {
			start := 8 * 60
			end := start + span
			tpl := mondayTemplate(k, TimeWindow{StartTime: FormatClock(start), EndTime: FormatClock(end)})
			got := Expand(tpl, monday)
			want := span / k
			if len(got) != want {
				t.Errorf("k=%d span=%d: expected %d slots, got %d", k, span, want, len(got))
				continue
			}
			if want == 0 {
				continue
			}
			if last := got[len(got)-1].EndTime; last != FormatClock(start+k*want) {
				t.Errorf("k=%d span=%d: last end %s, want %s", k, span, last, FormatClock(start+k*want))
			}
		}
	}
}

func TestExpandRange(t *testing.T) {
	tpl := mondayTemplate(20, TimeWindow{StartTime: "09:00", EndTime: "10:00"})
	days := ExpandRange(tpl, monday, monday.AddDays(2))
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(days))
	}
	if days[0].Day != Monday || len(days[0].Slots) != 3 {
		t.Errorf("unexpected MON entry %+v", days[0])
	}
	if days[1].Day != Tuesday || len(days[1].Slots) != 0 {
		t.Errorf("unexpected TUE entry %+v", days[1])
	}
	if days[2].Date != monday.AddDays(2) || len(days[2].Slots) != 3 {
		t.Errorf("unexpected WED entry %+v", days[2])
	}
	if got := ExpandRange(tpl, monday, monday.AddDays(-1)); len(got) != 0 {
		t.Errorf("expected empty result for inverted range, got %d days", len(got))
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"09:00", 540, false},
		{"9:05", 545, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{"24:00", 1440, false},
		{" 10:30 ", 630, false},
		{"24:01", 0, true},
		{"10:60", 0, true},
		{"10:5", 0, true},
		{"1000", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
		{"-1:00", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q): expected error, got %d", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseClock(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
}

func TestFormatAndNormalize(t *testing.T) {
	if got := FormatClock(545); got != "09:05" {
		t.Errorf("FormatClock(545) = %s", got)
	}
	if got := NormalizeSlot(Slot{StartTime: "9:00", EndTime: "9:20"}); got != (Slot{StartTime: "09:00", EndTime: "09:20"}) {
		t.Errorf("unexpected normalized slot %s", got)
	}
	bad := Slot{StartTime: "x", EndTime: "09:20"}
	if got := NormalizeSlot(bad); got != bad {
		t.Errorf("unparseable slot should be returned unchanged, got %s", got)
	}
}

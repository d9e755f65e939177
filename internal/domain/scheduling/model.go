package scheduling

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// DoctorID is the stable doctor identifier used for every template and booking.
type DoctorID string

// PatientID is an opaque patient identifier supplied by the identity provider.
type PatientID string

// Weekday is a three-letter uppercase weekday code.
type Weekday string

const (
	Sunday    Weekday = "SUN"
	Monday    Weekday = "MON"
	Tuesday   Weekday = "TUE"
	Wednesday Weekday = "WED"
	Thursday  Weekday = "THU"
	Friday    Weekday = "FRI"
	Saturday  Weekday = "SAT"
)

// Weekdays lists the codes in time.Weekday order.
var Weekdays = [7]Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// WeekdayOf returns the weekday code of a calendar date.
func WeekdayOf(d civil.Date) Weekday {
	return Weekdays[d.In(time.UTC).Weekday()]
}

func (w Weekday) Valid() bool {
	switch w {
	case Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday:
		return true
	}
	return false
}

func (w *Weekday) UnmarshalText(b []byte) error {
	v := Weekday(b)
	if !v.Valid() {
		return fmt.Errorf("unknown weekday %q", string(b))
	}
	*w = v
	return nil
}

// TimeWindow is a raw working-hours block as submitted, e.g. 09:00-12:00.
type TimeWindow struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// DayAvailability is either Unavailable or Available with a list of windows.
// The zero value is Unavailable.
type DayAvailability struct {
	available bool
	windows   []TimeWindow
}

func Unavailable() DayAvailability { return DayAvailability{} }

func Available(windows ...TimeWindow) DayAvailability {
	return DayAvailability{available: true, windows: windows}
}

// Windows returns the day's windows and whether the day is available at all.
func (d DayAvailability) Windows() ([]TimeWindow, bool) {
	if !d.available {
		return nil, false
	}
	return d.windows, true
}

type dayAvailabilityJSON struct {
	IsAvailable bool         `json:"isAvailable"`
	TimeSlots   []TimeWindow `json:"timeSlots"`
}

func (d DayAvailability) MarshalJSON() ([]byte, error) {
	out := dayAvailabilityJSON{IsAvailable: d.available, TimeSlots: d.windows}
	if out.TimeSlots == nil {
		out.TimeSlots = []TimeWindow{}
	}
	return json.Marshal(out)
}

func (d *DayAvailability) UnmarshalJSON(b []byte) error {
	var raw dayAvailabilityJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.IsAvailable {
		*d = Available(raw.TimeSlots...)
	} else {
		*d = Unavailable()
	}
	return nil
}

// WeeklySchedule maps weekday codes to that day's availability. Missing days
// are unavailable.
type WeeklySchedule map[Weekday]DayAvailability

func (s *WeeklySchedule) UnmarshalJSON(b []byte) error {
	var raw map[string]DayAvailability
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = nil
		return nil
	}
	out := make(WeeklySchedule, len(raw))
	for k, v := range raw {
		w := Weekday(k)
		if !w.Valid() {
			return fmt.Errorf("unknown weekday %q in weekly schedule", k)
		}
		out[w] = v
	}
	*s = out
	return nil
}

// DateRange is an inclusive calendar-date span.
type DateRange struct {
	StartDate civil.Date `json:"startDate"`
	EndDate   civil.Date `json:"endDate"`
}

// Contains reports whether d lies within the range, bounds included.
func (r DateRange) Contains(d civil.Date) bool {
	return !d.Before(r.StartDate) && !d.After(r.EndDate)
}

type ExclusionKind string

const (
	ExclusionSingle ExclusionKind = "single"
	ExclusionRange  ExclusionKind = "range"
)

func (k *ExclusionKind) UnmarshalText(b []byte) error {
	switch v := ExclusionKind(b); v {
	case ExclusionSingle, ExclusionRange:
		*k = v
		return nil
	}
	return fmt.Errorf("unknown exclusion type %q", string(b))
}

// ExcludedPeriod is a blackout date or date span overriding the weekly schedule.
type ExcludedPeriod struct {
	StartDate civil.Date    `json:"startDate"`
	EndDate   civil.Date    `json:"endDate"`
	Kind      ExclusionKind `json:"type"`
}

// Covers reports whether the exclusion applies to d.
func (p ExcludedPeriod) Covers(d civil.Date) bool {
	if p.Kind == ExclusionRange {
		return DateRange{StartDate: p.StartDate, EndDate: p.EndDate}.Contains(d)
	}
	return d == p.StartDate
}

// Template is a doctor's recurring weekly availability.
type Template struct {
	DoctorID            DoctorID         `json:"doctorId"`
	SlotDurationMinutes int              `json:"slotDurationMinutes"`
	ActiveRange         DateRange        `json:"activeRange"`
	WeeklySchedule      WeeklySchedule   `json:"weeklySchedule"`
	ExcludedPeriods     []ExcludedPeriod `json:"excludedPeriods"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// Slot is a half-open [StartTime, EndTime) interval in zero-padded HH:MM.
type Slot struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

func (s Slot) String() string { return s.StartTime + "-" + s.EndTime }

// Status is a booking lifecycle state.
type Status string

const (
	StatusBooked      Status = "Booked"
	StatusOngoing     Status = "Ongoing"
	StatusCompleted   Status = "Completed"
	StatusCancelled   Status = "Cancelled"
	StatusRescheduled Status = "Rescheduled"
)

var validStatuses = map[Status]bool{
	StatusBooked: true, StatusOngoing: true, StatusCompleted: true,
	StatusCancelled: true, StatusRescheduled: true,
}

func (s Status) Valid() bool { return validStatuses[s] }

// Kind is the appointment type chosen by the patient.
type Kind string

const (
	KindConsultation Kind = "Consultation"
	KindFollowUp     Kind = "Follow-up"
)

func (k Kind) Valid() bool { return k == KindConsultation || k == KindFollowUp }

// Review is a patient rating left on a completed booking.
type Review struct {
	Rating    int       `json:"rating"`
	Text      string    `json:"review"`
	CreatedAt time.Time `json:"createdAt"`
}

// Booking is one booked appointment. HoldsSlot marks the booking as the
// current occupant of its (doctor, date, slot) and backs the storage-level
// uniqueness guard.
type Booking struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  DoctorID  `json:"doctorId"`
	PatientID PatientID `json:"patientId"`
	DateRange DateRange `json:"dateRange"`
	Weekday   Weekday   `json:"day"`
	TimeSlot  Slot      `json:"timeSlot"`
	Status    Status    `json:"status"`
	Kind      Kind      `json:"appointmentType"`
	Reviews   []Review  `json:"reviews"`
	HoldsSlot bool      `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Date is the single calendar day the booking occupies.
func (b *Booking) Date() civil.Date { return b.DateRange.StartDate }

// BookingRequest is the client-supplied input for a new booking.
type BookingRequest struct {
	DoctorID  DoctorID  `json:"doctorId"`
	PatientID PatientID `json:"patientId"`
	DateRange DateRange `json:"dateRange"`
	Weekday   Weekday   `json:"day"`
	TimeSlot  Slot      `json:"timeSlot"`
	Kind      Kind      `json:"appointmentType"`
}

// DaySlots is the open slot list for one calendar date.
type DaySlots struct {
	Date  civil.Date `json:"date"`
	Day   Weekday    `json:"day"`
	Slots []Slot     `json:"slots"`
}

// Doctor is the directory entry used to translate display names to IDs.
type Doctor struct {
	ID   DoctorID `json:"doctorId"`
	Name string   `json:"name"`
}

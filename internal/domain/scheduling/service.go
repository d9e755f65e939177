package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careslot/careslot/internal/platform/clock"
)

// MaxCalendarDays bounds a single calendar request.
const MaxCalendarDays = 62

// DefaultCollaboratorTimeout bounds each notifier and report call unless
// WithCollaboratorTimeout overrides it.
const DefaultCollaboratorTimeout = 10 * time.Second

// SlotCache memoizes open slot lists per doctor. Invalidate drops every entry
// in the scope. Set must store nothing when the scope was invalidated after
// Get returned version.
type SlotCache interface {
	Get(ctx context.Context, scope, key string) (value []byte, version string, ok bool)
	Set(ctx context.Context, scope, key, version string, value []byte)
	Invalidate(ctx context.Context, scope string)
}

type nopCache struct{}

func (nopCache) Get(context.Context, string, string) ([]byte, string, bool) { return nil, "", false }
func (nopCache) Set(context.Context, string, string, string, []byte)        {}
func (nopCache) Invalidate(context.Context, string)                         {}

// ChangeEvent describes a booking that was cancelled or rescheduled.
type ChangeEvent struct {
	BookingID uuid.UUID
	DoctorID  DoctorID
	PatientID PatientID
	Date      civil.Date
	Day       Weekday
	TimeSlot  Slot
	Status    Status
}

// Notifier is told about cancellations and reschedules.
type Notifier interface {
	BookingChanged(ctx context.Context, ev ChangeEvent) error
}

// ReportRequest asks the clinical report service to prepare a visit report.
type ReportRequest struct {
	BookingID uuid.UUID  `json:"bookingId"`
	DoctorID  DoctorID   `json:"doctorId"`
	PatientID PatientID  `json:"patientId"`
	Date      civil.Date `json:"date"`
}

// ReportRequester is told about completed bookings.
type ReportRequester interface {
	RequestReport(ctx context.Context, req ReportRequest) error
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID    string
	Admin bool
}

func (a Actor) participates(b *Booking) bool {
	return a.Admin || a.ID == string(b.DoctorID) || a.ID == string(b.PatientID)
}

type Option func(*Service)

func WithBlockingPolicy(p BlockingPolicy) Option { return func(s *Service) { s.policy = p } }

func WithSlotCache(c SlotCache) Option { return func(s *Service) { s.cache = c } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithReportRequester(r ReportRequester) Option { return func(s *Service) { s.reports = r } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithCollaboratorTimeout bounds each notifier and report call.
func WithCollaboratorTimeout(d time.Duration) Option {
	return func(s *Service) { s.collabTimeout = d }
}

type Service struct {
	templates TemplateRepository
	bookings  BookingRepository
	doctors   DoctorDirectory
	clock     clock.Clock

	policy        BlockingPolicy
	cache         SlotCache
	notifier      Notifier
	reports       ReportRequester
	logger        zerolog.Logger
	collabTimeout time.Duration

	pending sync.WaitGroup
}

func NewService(templates TemplateRepository, bookings BookingRepository, doctors DoctorDirectory, clk clock.Clock, opts ...Option) *Service {
	s := &Service{
		templates:     templates,
		bookings:      bookings,
		doctors:       doctors,
		clock:         clk,
		policy:        DefaultBlockingPolicy,
		cache:         nopCache{},
		logger:        zerolog.Nop(),
		collabTimeout: DefaultCollaboratorTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Wait blocks until every in-flight collaborator call has returned.
func (s *Service) Wait() { s.pending.Wait() }

// -- Templates --

func (s *Service) SaveTemplate(ctx context.Context, t *Template) error {
	if t == nil || t.DoctorID == "" {
		return ValidationError("doctorId is required")
	}
	if t.SlotDurationMinutes <= 0 {
		return ValidationError("slotDurationMinutes must be positive")
	}
	if !t.ActiveRange.StartDate.IsValid() || !t.ActiveRange.EndDate.IsValid() {
		return ValidationError("activeRange.startDate and activeRange.endDate are required")
	}
	if t.ActiveRange.EndDate.Before(t.ActiveRange.StartDate) {
		return ValidationError("activeRange.endDate must not be before activeRange.startDate")
	}
	if t.WeeklySchedule == nil {
		return ValidationError("weeklySchedule is required")
	}
	for i := range t.ExcludedPeriods {
		p := &t.ExcludedPeriods[i]
		if !p.StartDate.IsValid() {
			return ValidationError("excludedPeriods[%d].startDate is required", i)
		}
		switch p.Kind {
		case "", ExclusionSingle:
			p.Kind = ExclusionSingle
			p.EndDate = p.StartDate
		case ExclusionRange:
			if !p.EndDate.IsValid() || p.EndDate.Before(p.StartDate) {
				return ValidationError("excludedPeriods[%d].endDate must be on or after startDate", i)
			}
		}
	}

	now := s.clock.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := s.templates.Upsert(ctx, t); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, string(t.DoctorID))
	s.logger.Info().Str("doctor_id", string(t.DoctorID)).Msg("availability template saved")
	return nil
}

func (s *Service) GetTemplate(ctx context.Context, doctorID DoctorID) (*Template, error) {
	if doctorID == "" {
		return nil, ValidationError("doctorId is required")
	}
	t, err := s.templates.GetByDoctor(ctx, doctorID)
	if errors.Is(err, ErrNotFound) {
		return nil, NotFoundError("no availability template for doctor %s", doctorID)
	}
	return t, err
}

// -- Availability --

// AvailableSlots returns the slots still open for booking on date.
func (s *Service) AvailableSlots(ctx context.Context, doctorID DoctorID, date civil.Date) ([]Slot, error) {
	if !date.IsValid() {
		return nil, ValidationError("date is required")
	}
	t, err := s.GetTemplate(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return s.openSlots(ctx, t, date)
}

// Calendar returns open slots for every date in [from, to].
func (s *Service) Calendar(ctx context.Context, doctorID DoctorID, from, to civil.Date) ([]DaySlots, error) {
	if !from.IsValid() || !to.IsValid() {
		return nil, ValidationError("from and to are required")
	}
	if to.Before(from) {
		return nil, ValidationError("to must not be before from")
	}
	if to.DaysSince(from)+1 > MaxCalendarDays {
		return nil, ValidationError("calendar range is limited to %d days", MaxCalendarDays)
	}
	t, err := s.GetTemplate(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	days := ExpandRange(t, from, to)
	scope := string(t.DoctorID)
	// versions holds the cache version observed for each day that missed.
	versions := make(map[int]string)
	load := false
	for i := range days {
		open, version, ok := s.cachedSlots(ctx, scope, days[i].Date)
		if ok {
			days[i].Slots = open
			continue
		}
		versions[i] = version
		if len(days[i].Slots) > 0 {
			load = true
		}
	}
	if len(versions) == 0 {
		return days, nil
	}

	byDate := map[civil.Date][]*Booking{}
	if load {
		existing, err := s.bookings.ListByDoctorRange(ctx, t.DoctorID, from, to)
		if err != nil {
			return nil, err
		}
		for _, b := range existing {
			byDate[b.DateRange.StartDate] = append(byDate[b.DateRange.StartDate], b)
		}
	}
	for i, version := range versions {
		open := []Slot{}
		if len(days[i].Slots) > 0 {
			open = Filter(days[i].Slots, byDate[days[i].Date], days[i].Date, s.policy)
		}
		days[i].Slots = open
		s.storeSlots(ctx, scope, days[i].Date, version, open)
	}
	return days, nil
}

// cachedSlots returns the cached listing for date and the cache version it
// observed, hit or miss.
func (s *Service) cachedSlots(ctx context.Context, scope string, date civil.Date) ([]Slot, string, bool) {
	raw, version, ok := s.cache.Get(ctx, scope, date.String())
	if !ok {
		return nil, version, false
	}
	var cached []Slot
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, version, false
	}
	return cached, version, true
}

func (s *Service) storeSlots(ctx context.Context, scope string, date civil.Date, version string, open []Slot) {
	if raw, err := json.Marshal(open); err == nil {
		s.cache.Set(ctx, scope, date.String(), version, raw)
	}
}

// openSlots reads the cache version before the bookings, so a write that
// invalidates the doctor in between keeps this listing out of the cache.
func (s *Service) openSlots(ctx context.Context, t *Template, date civil.Date) ([]Slot, error) {
	scope := string(t.DoctorID)
	cached, version, ok := s.cachedSlots(ctx, scope, date)
	if ok {
		return cached, nil
	}

	open := []Slot{}
	if candidates := Expand(t, date); len(candidates) > 0 {
		existing, err := s.bookings.ListByDoctorDate(ctx, t.DoctorID, date)
		if err != nil {
			return nil, err
		}
		open = Filter(candidates, existing, date, s.policy)
	}
	s.storeSlots(ctx, scope, date, version, open)
	return open, nil
}

// -- Bookings --

func (s *Service) CreateBooking(ctx context.Context, req BookingRequest) (*Booking, error) {
	switch {
	case req.DoctorID == "":
		return nil, ValidationError("doctorId is required")
	case req.PatientID == "":
		return nil, ValidationError("patientId is required")
	case !req.DateRange.StartDate.IsValid() || !req.DateRange.EndDate.IsValid():
		return nil, ValidationError("dateRange.startDate and dateRange.endDate are required")
	case req.Weekday == "":
		return nil, ValidationError("day is required")
	case req.TimeSlot.StartTime == "" || req.TimeSlot.EndTime == "":
		return nil, ValidationError("timeSlot.startTime and timeSlot.endTime are required")
	case req.Kind == "":
		return nil, ValidationError("appointmentType is required")
	}
	if !req.Kind.Valid() {
		return nil, ValidationError("unknown appointmentType %q", req.Kind)
	}

	date := req.DateRange.StartDate
	if req.DateRange.EndDate.Before(date) {
		return nil, ValidationError("dateRange.endDate must not be before dateRange.startDate")
	}
	if day := WeekdayOf(date); req.Weekday != day {
		return nil, ValidationError("day %s does not match %s (%s)", req.Weekday, date, day)
	}
	start, err := ParseClock(req.TimeSlot.StartTime)
	if err != nil {
		return nil, ValidationError("timeSlot.startTime: %v", err)
	}
	end, err := ParseClock(req.TimeSlot.EndTime)
	if err != nil {
		return nil, ValidationError("timeSlot.endTime: %v", err)
	}
	if end <= start {
		return nil, ValidationError("timeSlot.endTime must be after timeSlot.startTime")
	}
	slot := Slot{StartTime: FormatClock(start), EndTime: FormatClock(end)}

	t, err := s.GetTemplate(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !offers(Expand(t, date), slot) {
		return nil, ValidationError("slot %s on %s is not offered", slot, date)
	}

	now := s.clock.Now()
	b := &Booking{
		ID:        uuid.New(),
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		DateRange: req.DateRange,
		Weekday:   req.Weekday,
		TimeSlot:  slot,
		Status:    StatusBooked,
		Kind:      req.Kind,
		Reviews:   []Review{},
		HoldsSlot: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.bookings.InsertIfSlotFree(ctx, b); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, ConflictError("slot %s on %s is already booked", slot, date)
		}
		return nil, err
	}
	s.cache.Invalidate(ctx, string(b.DoctorID))

	s.logger.Info().
		Str("booking_id", b.ID.String()).
		Str("doctor_id", string(b.DoctorID)).
		Str("date", date.String()).
		Str("slot", slot.String()).
		Msg("booking created")
	return b, nil
}

func offers(candidates []Slot, slot Slot) bool {
	for _, c := range candidates {
		if NormalizeSlot(c) == slot {
			return true
		}
	}
	return false
}

func (s *Service) getBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, NotFoundError("booking %s not found", id)
	}
	return b, err
}

// GetBooking returns a booking visible to actor.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID, actor Actor) (*Booking, error) {
	b, err := s.getBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.participates(b) {
		return nil, ForbiddenError("booking %s belongs to another user", id)
	}
	return b, nil
}

// Transition moves a booking to status to. Non-admin actors may only move
// their own doctor's bookings.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status, actor Actor) (*Booking, error) {
	if !to.Valid() {
		return nil, ValidationError("unknown status %q", to)
	}
	b, err := s.getBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && actor.ID != string(b.DoctorID) {
		return nil, ForbiddenError("only the booking's doctor may change its status")
	}
	if !CanTransition(b.Status, to) {
		return nil, InvalidTransitionError(b.Status, to)
	}

	from := b.Status
	updated := *b
	updated.Status = to
	updated.UpdatedAt = s.clock.Now()
	updated.HoldsSlot = s.policy.Blocks(to)

	err = s.bookings.UpdateStatus(ctx, &updated, from)
	if errors.Is(err, ErrSlotTaken) && updated.HoldsSlot {
		s.logger.Warn().
			Str("booking_id", id.String()).
			Str("slot", updated.TimeSlot.String()).
			Msg("slot re-claimed by another booking, keeping status without holding it")
		updated.HoldsSlot = false
		err = s.bookings.UpdateStatus(ctx, &updated, from)
	}
	if errors.Is(err, ErrStale) {
		current, rerr := s.getBooking(ctx, id)
		if rerr != nil {
			return nil, rerr
		}
		return nil, InvalidTransitionError(current.Status, to)
	}
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, string(updated.DoctorID))

	s.logger.Info().
		Str("booking_id", id.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("booking status changed")
	s.afterTransition(&updated)
	return &updated, nil
}

func (s *Service) afterTransition(b *Booking) {
	switch b.Status {
	case StatusCancelled, StatusRescheduled:
		if s.notifier == nil {
			return
		}
		ev := ChangeEvent{
			BookingID: b.ID,
			DoctorID:  b.DoctorID,
			PatientID: b.PatientID,
			Date:      b.Date(),
			Day:       b.Weekday,
			TimeSlot:  b.TimeSlot,
			Status:    b.Status,
		}
		s.dispatch("notifier", b.ID, func(ctx context.Context) error {
			return s.notifier.BookingChanged(ctx, ev)
		})
	case StatusCompleted:
		if s.reports == nil {
			return
		}
		req := ReportRequest{BookingID: b.ID, DoctorID: b.DoctorID, PatientID: b.PatientID, Date: b.Date()}
		s.dispatch("report", b.ID, func(ctx context.Context) error {
			return s.reports.RequestReport(ctx, req)
		})
	}
}

// dispatch runs fn on a detached context so the caller's request deadline
// does not cancel it. Failures are logged only.
func (s *Service) dispatch(name string, bookingID uuid.UUID, fn func(ctx context.Context) error) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.collabTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Error().Err(err).
				Str("collaborator", name).
				Str("booking_id", bookingID.String()).
				Msg("collaborator call failed")
		}
	}()
}

// AddReview appends a patient review to a completed booking.
func (s *Service) AddReview(ctx context.Context, id uuid.UUID, patientID PatientID, rating int, text string) (*Booking, error) {
	b, err := s.getBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.PatientID != patientID {
		return nil, ForbiddenError("only the booking's patient may review it")
	}
	if b.Status != StatusCompleted {
		return nil, ValidationError("only completed bookings can be reviewed")
	}
	if rating < 1 || rating > 5 {
		return nil, ValidationError("rating must be between 1 and 5")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ValidationError("review text is required")
	}

	rv := Review{Rating: rating, Text: text, CreatedAt: s.clock.Now()}
	if err := s.bookings.AppendReview(ctx, id, rv); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFoundError("booking %s not found", id)
		}
		return nil, err
	}
	b.Reviews = append(b.Reviews, rv)
	b.UpdatedAt = rv.CreatedAt
	return b, nil
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID DoctorID, date *civil.Date, limit, offset int) ([]*Booking, int, error) {
	if doctorID == "" {
		return nil, 0, ValidationError("doctorId is required")
	}
	return s.bookings.ListByDoctor(ctx, doctorID, date, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID PatientID, limit, offset int) ([]*Booking, int, error) {
	if patientID == "" {
		return nil, 0, ValidationError("patientId is required")
	}
	return s.bookings.ListByPatient(ctx, patientID, limit, offset)
}

// -- Doctors --

func (s *Service) FindDoctorByName(ctx context.Context, name string) (*Doctor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ValidationError("name is required")
	}
	d, err := s.doctors.FindByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, NotFoundError("doctor %q not found", name)
	}
	return d, err
}

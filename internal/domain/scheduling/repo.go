package scheduling

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// TemplateRepository stores one availability template per doctor.
type TemplateRepository interface {
	// Upsert replaces the doctor's template wholesale.
	Upsert(ctx context.Context, t *Template) error
	// GetByDoctor returns ErrNotFound when the doctor has no template.
	GetByDoctor(ctx context.Context, doctorID DoctorID) (*Template, error)
}

// BookingRepository persists bookings. Implementations enforce that at most
// one booking with HoldsSlot set exists per (doctor, date, start, end).
type BookingRepository interface {
	// InsertIfSlotFree returns ErrSlotTaken when another booking holds the slot.
	InsertIfSlotFree(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListByDoctorDate(ctx context.Context, doctorID DoctorID, date civil.Date) ([]*Booking, error)
	// ListByDoctorRange returns bookings whose start date is in [from, to].
	ListByDoctorRange(ctx context.Context, doctorID DoctorID, from, to civil.Date) ([]*Booking, error)
	// ListByDoctor filters by date when date is non-nil.
	ListByDoctor(ctx context.Context, doctorID DoctorID, date *civil.Date, limit, offset int) ([]*Booking, int, error)
	ListByPatient(ctx context.Context, patientID PatientID, limit, offset int) ([]*Booking, int, error)
	// UpdateStatus writes b.Status, b.HoldsSlot and b.UpdatedAt only if the
	// stored status still equals from. It returns ErrStale when it does not
	// and ErrSlotTaken when claiming the slot collides.
	UpdateStatus(ctx context.Context, b *Booking, from Status) error
	AppendReview(ctx context.Context, id uuid.UUID, r Review) error
}

// DoctorDirectory translates display names to doctor IDs.
type DoctorDirectory interface {
	FindByName(ctx context.Context, name string) (*Doctor, error)
}

package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careslot/careslot/internal/platform/db"
)

func pgDate(d civil.Date) time.Time { return d.In(time.UTC) }

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// =========== Template Repository ===========

type templateRepoPG struct{ pool *pgxpool.Pool }

func NewTemplateRepoPG(pool *pgxpool.Pool) TemplateRepository { return &templateRepoPG{pool: pool} }

func (r *templateRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *templateRepoPG) Upsert(ctx context.Context, t *Template) error {
	schedule, err := json.Marshal(t.WeeklySchedule)
	if err != nil {
		return fmt.Errorf("encode weekly schedule: %w", err)
	}
	excluded := t.ExcludedPeriods
	if excluded == nil {
		excluded = []ExcludedPeriod{}
	}
	periods, err := json.Marshal(excluded)
	if err != nil {
		return fmt.Errorf("encode excluded periods: %w", err)
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO availability_template (doctor_id, slot_duration_minutes, active_start, active_end,
			weekly_schedule, excluded_periods, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
		ON CONFLICT (doctor_id) DO UPDATE SET
			slot_duration_minutes = EXCLUDED.slot_duration_minutes,
			active_start = EXCLUDED.active_start,
			active_end = EXCLUDED.active_end,
			weekly_schedule = EXCLUDED.weekly_schedule,
			excluded_periods = EXCLUDED.excluded_periods,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at`,
		t.DoctorID, t.SlotDurationMinutes, pgDate(t.ActiveRange.StartDate), pgDate(t.ActiveRange.EndDate),
		schedule, periods, t.UpdatedAt).Scan(&t.CreatedAt)
}

func (r *templateRepoPG) GetByDoctor(ctx context.Context, doctorID DoctorID) (*Template, error) {
	var t Template
	var start, end time.Time
	var schedule, periods []byte
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT doctor_id, slot_duration_minutes, active_start, active_end,
			weekly_schedule, excluded_periods, created_at, updated_at
		FROM availability_template WHERE doctor_id = $1`, doctorID).
		Scan(&t.DoctorID, &t.SlotDurationMinutes, &start, &end, &schedule, &periods, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	t.ActiveRange = DateRange{StartDate: civil.DateOf(start), EndDate: civil.DateOf(end)}
	if err := json.Unmarshal(schedule, &t.WeeklySchedule); err != nil {
		return nil, fmt.Errorf("decode weekly schedule: %w", err)
	}
	if err := json.Unmarshal(periods, &t.ExcludedPeriods); err != nil {
		return nil, fmt.Errorf("decode excluded periods: %w", err)
	}
	return &t, nil
}

// =========== Booking Repository ===========

type bookingRepoPG struct{ pool *pgxpool.Pool }

func NewBookingRepoPG(pool *pgxpool.Pool) BookingRepository { return &bookingRepoPG{pool: pool} }

func (r *bookingRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const bookingCols = `b.id, b.doctor_id, b.patient_id, b.start_date, b.end_date, b.weekday,
	b.start_time, b.end_time, b.status, b.kind, b.holds_slot, b.created_at, b.updated_at,
	COALESCE((SELECT json_agg(json_build_object('rating', rv.rating, 'review', rv.review, 'createdAt', rv.created_at)
		ORDER BY rv.created_at) FROM booking_review rv WHERE rv.booking_id = b.id), '[]'::json)`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var start, end time.Time
	var reviews []byte
	err := row.Scan(&b.ID, &b.DoctorID, &b.PatientID, &start, &end, &b.Weekday,
		&b.TimeSlot.StartTime, &b.TimeSlot.EndTime, &b.Status, &b.Kind, &b.HoldsSlot,
		&b.CreatedAt, &b.UpdatedAt, &reviews)
	if err != nil {
		return nil, err
	}
	b.DateRange = DateRange{StartDate: civil.DateOf(start), EndDate: civil.DateOf(end)}
	if err := json.Unmarshal(reviews, &b.Reviews); err != nil {
		return nil, fmt.Errorf("decode reviews: %w", err)
	}
	return &b, nil
}

func (r *bookingRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Booking, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (r *bookingRepoPG) InsertIfSlotFree(ctx context.Context, b *Booking) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO booking (id, doctor_id, patient_id, start_date, end_date, weekday,
			start_time, end_time, status, kind, holds_slot, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (doctor_id, start_date, start_time, end_time) WHERE holds_slot DO NOTHING`,
		b.ID, b.DoctorID, b.PatientID, pgDate(b.DateRange.StartDate), pgDate(b.DateRange.EndDate), b.Weekday,
		b.TimeSlot.StartTime, b.TimeSlot.EndTime, b.Status, b.Kind, b.HoldsSlot, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrSlotTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotTaken
	}
	return nil
}

func (r *bookingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := scanBooking(r.conn(ctx).QueryRow(ctx, `SELECT `+bookingCols+` FROM booking b WHERE b.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

func (r *bookingRepoPG) ListByDoctorDate(ctx context.Context, doctorID DoctorID, date civil.Date) ([]*Booking, error) {
	return r.list(ctx, `SELECT `+bookingCols+` FROM booking b
		WHERE b.doctor_id = $1 AND b.start_date = $2 ORDER BY b.start_time`, doctorID, pgDate(date))
}

func (r *bookingRepoPG) ListByDoctorRange(ctx context.Context, doctorID DoctorID, from, to civil.Date) ([]*Booking, error) {
	return r.list(ctx, `SELECT `+bookingCols+` FROM booking b
		WHERE b.doctor_id = $1 AND b.start_date BETWEEN $2 AND $3
		ORDER BY b.start_date, b.start_time`, doctorID, pgDate(from), pgDate(to))
}

func (r *bookingRepoPG) ListByDoctor(ctx context.Context, doctorID DoctorID, date *civil.Date, limit, offset int) ([]*Booking, int, error) {
	where := ` WHERE b.doctor_id = $1`
	args := []interface{}{doctorID}
	if date != nil {
		where += ` AND b.start_date = $2`
		args = append(args, pgDate(*date))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM booking b`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	idx := len(args) + 1
	query := `SELECT ` + bookingCols + ` FROM booking b` + where +
		fmt.Sprintf(` ORDER BY b.start_date, b.start_time LIMIT $%d OFFSET $%d`, idx, idx+1)
	items, err := r.list(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *bookingRepoPG) ListByPatient(ctx context.Context, patientID PatientID, limit, offset int) ([]*Booking, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM booking WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.list(ctx, `SELECT `+bookingCols+` FROM booking b
		WHERE b.patient_id = $1 ORDER BY b.start_date DESC, b.start_time DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *bookingRepoPG) UpdateStatus(ctx context.Context, b *Booking, from Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE booking SET status = $2, holds_slot = $3, updated_at = $4
		WHERE id = $1 AND status = $5`,
		b.ID, b.Status, b.HoldsSlot, b.UpdatedAt, from)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrSlotTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

func (r *bookingRepoPG) AppendReview(ctx context.Context, id uuid.UUID, rv Review) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var locked uuid.UUID
		err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM booking WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if err != nil {
			return notFound(err)
		}
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO booking_review (booking_id, rating, review, created_at) VALUES ($1,$2,$3,$4)`,
			id, rv.Rating, rv.Text, rv.CreatedAt); err != nil {
			return err
		}
		_, err = r.conn(ctx).Exec(ctx, `UPDATE booking SET updated_at = $2 WHERE id = $1`, id, rv.CreatedAt)
		return err
	})
}

// =========== Doctor Directory ===========

type doctorDirectoryPG struct{ pool *pgxpool.Pool }

func NewDoctorDirectoryPG(pool *pgxpool.Pool) DoctorDirectory { return &doctorDirectoryPG{pool: pool} }

func (r *doctorDirectoryPG) FindByName(ctx context.Context, name string) (*Doctor, error) {
	var d Doctor
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM doctor WHERE lower(name) = lower($1)
		ORDER BY created_at LIMIT 1`, name).Scan(&d.ID, &d.Name)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

package notification

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type storePG struct{ pool *pgxpool.Pool }

// NewStorePG returns a Store backed by the notification table.
func NewStorePG(pool *pgxpool.Pool) Store { return &storePG{pool: pool} }

const notificationCols = `id, doctor_id, patient_id, booking_id, appointment_date, appointment_day,
	appointment_time, status, message, is_read, created_at, updated_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	var date time.Time
	err := row.Scan(&n.ID, &n.DoctorID, &n.PatientID, &n.BookingID, &date, &n.AppointmentDay,
		&n.AppointmentTime, &n.Status, &n.Message, &n.IsRead, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	n.AppointmentDate = civil.DateOf(date)
	return &n, nil
}

func (s *storePG) Create(ctx context.Context, n *Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification (id, doctor_id, patient_id, booking_id, appointment_date, appointment_day,
			appointment_time, status, message, is_read, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		n.ID, n.DoctorID, n.PatientID, n.BookingID, n.AppointmentDate.In(time.UTC), n.AppointmentDay,
		n.AppointmentTime, n.Status, n.Message, n.IsRead, n.CreatedAt, n.UpdatedAt)
	return err
}

func (s *storePG) ListForUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+notificationCols+` FROM notification
		WHERE doctor_id = $1 OR patient_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (s *storePG) MarkRead(ctx context.Context, id uuid.UUID, userID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE notification SET is_read = TRUE, updated_at = $3
		WHERE id = $1 AND (doctor_id = $2 OR patient_id = $2)`, id, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package scheduling

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/careslot/careslot/internal/platform/notification"
	"github.com/careslot/careslot/internal/platform/webhook"
)

// ReportEventType is the webhook event sent when a booking completes.
const ReportEventType = "appointment.completed"

// NotificationNotifier records an in-app notification for each change.
type NotificationNotifier struct {
	mgr *notification.Manager
}

func NewNotificationNotifier(mgr *notification.Manager) *NotificationNotifier {
	return &NotificationNotifier{mgr: mgr}
}

func (n *NotificationNotifier) BookingChanged(ctx context.Context, ev ChangeEvent) error {
	var status notification.Status
	switch ev.Status {
	case StatusCancelled:
		status = notification.StatusCancelled
	case StatusRescheduled:
		status = notification.StatusRescheduled
	default:
		return fmt.Errorf("no notification for status %s", ev.Status)
	}
	_, err := n.mgr.Record(ctx, notification.Event{
		DoctorID:        string(ev.DoctorID),
		PatientID:       string(ev.PatientID),
		BookingID:       ev.BookingID,
		AppointmentDate: ev.Date,
		AppointmentDay:  string(ev.Day),
		AppointmentTime: ev.TimeSlot.StartTime,
		Status:          status,
	})
	return err
}

// WebhookReporter forwards report requests to the clinical report service.
type WebhookReporter struct {
	dispatcher *webhook.Dispatcher
}

func NewWebhookReporter(d *webhook.Dispatcher) *WebhookReporter {
	return &WebhookReporter{dispatcher: d}
}

func (w *WebhookReporter) RequestReport(ctx context.Context, req ReportRequest) error {
	_, err := w.dispatcher.Send(ctx, ReportEventType, req)
	return err
}

// LogReporter only logs report requests. Used when no report service is configured.
type LogReporter struct {
	logger zerolog.Logger
}

func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (l *LogReporter) RequestReport(_ context.Context, req ReportRequest) error {
	l.logger.Info().
		Str("booking_id", req.BookingID.String()).
		Str("doctor_id", string(req.DoctorID)).
		Str("patient_id", string(req.PatientID)).
		Str("date", req.Date.String()).
		Msg("report requested")
	return nil
}

// Package notification records patient-facing appointment notices, renders
// their message text from templates, and serves them over Echo HTTP handlers.
// Delivery to email or SMS is left to downstream consumers of the records.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Notification
// ---------------------------------------------------------------------------

// Status is the appointment change a notification reports.
type Status string

const (
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

// Notification is one stored notice about a booking change.
type Notification struct {
	ID              uuid.UUID  `json:"id"`
	DoctorID        string     `json:"doctorId"`
	PatientID       string     `json:"patientId"`
	BookingID       uuid.UUID  `json:"bookingId"`
	AppointmentDate civil.Date `json:"appointmentDate"`
	AppointmentDay  string     `json:"appointmentDay"`
	AppointmentTime string     `json:"appointmentTime"`
	Status          Status     `json:"status"`
	Message         string     `json:"message"`
	IsRead          bool       `json:"isRead"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Event is the input for a new notification.
type Event struct {
	DoctorID        string
	PatientID       string
	BookingID       uuid.UUID
	AppointmentDate civil.Date
	AppointmentDay  string
	AppointmentTime string
	Status          Status
}

var ErrNotFound = errors.New("notification not found")

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Store persists notifications. ListForUser returns notices where the user is
// either the doctor or the patient, newest first.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	ListForUser(ctx context.Context, userID string, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, userID string, at time.Time) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu            sync.RWMutex
	notifications map[uuid.UUID]*Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notifications: make(map[uuid.UUID]*Notification)}
}

func (m *MemoryStore) Create(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *MemoryStore) ListForUser(_ context.Context, userID string, limit int) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Notification
	for _, n := range m.notifications {
		if n.DoctorID == userID || n.PatientID == userID {
			cp := *n
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) MarkRead(_ context.Context, id uuid.UUID, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || (n.DoctorID != userID && n.PatientID != userID) {
		return ErrNotFound
	}
	n.IsRead = true
	n.UpdatedAt = at
	return nil
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines the message text for one notification status.
type Template struct {
	Status Status `json:"status"`
	Body   string `json:"body"`
}

// TemplateEngine renders notification messages with {{key}} placeholders.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[Status]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[Status]*Template)}
	e.RegisterTemplate(Template{
		Status: StatusCancelled,
		Body:   "Your appointment on {{date}} ({{day}}) at {{time}} has been cancelled by the doctor.",
	})
	e.RegisterTemplate(Template{
		Status: StatusRescheduled,
		Body:   "Your appointment on {{date}} ({{day}}) at {{time}} needs to be rescheduled. Please pick a new slot.",
	})
	return e
}

// RegisterTemplate adds or replaces the template for a status.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.Status] = &t
}

// Render performs {{key}} replacement on the template for status. Keys
// present in the template but absent from data are left as-is.
func (e *TemplateEngine) Render(status Status, data map[string]string) (string, error) {
	e.mu.RLock()
	t, ok := e.templates[status]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no template for status %q", status)
	}
	body := t.Body
	for k, v := range data {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	return body, nil
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

// DefaultListLimit is the number of notices returned when the caller gives none.
const DefaultListLimit = 10

// Manager creates and lists notifications.
type Manager struct {
	store     Store
	templates *TemplateEngine
	now       func() time.Time
}

func NewManager(store Store, tpl *TemplateEngine, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, templates: tpl, now: now}
}

// Record validates ev, renders its message and stores it unread.
func (m *Manager) Record(ctx context.Context, ev Event) (*Notification, error) {
	if ev.DoctorID == "" || ev.PatientID == "" {
		return nil, fmt.Errorf("doctor and patient are required")
	}
	if ev.BookingID == uuid.Nil {
		return nil, fmt.Errorf("booking id is required")
	}
	if ev.Status != StatusCancelled && ev.Status != StatusRescheduled {
		return nil, fmt.Errorf("unsupported notification status: %s", ev.Status)
	}

	msg, err := m.templates.Render(ev.Status, map[string]string{
		"date": ev.AppointmentDate.String(),
		"day":  ev.AppointmentDay,
		"time": ev.AppointmentTime,
	})
	if err != nil {
		return nil, fmt.Errorf("render notification: %w", err)
	}

	now := m.now()
	n := &Notification{
		ID:              uuid.New(),
		DoctorID:        ev.DoctorID,
		PatientID:       ev.PatientID,
		BookingID:       ev.BookingID,
		AppointmentDate: ev.AppointmentDate,
		AppointmentDay:  ev.AppointmentDay,
		AppointmentTime: ev.AppointmentTime,
		Status:          ev.Status,
		Message:         msg,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("store notification: %w", err)
	}
	return n, nil
}

// ListForUser returns up to limit notices for the user, newest first.
func (m *Manager) ListForUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return m.store.ListForUser(ctx, userID, limit)
}

// MarkRead flags a notice owned by the user as read.
func (m *Manager) MarkRead(ctx context.Context, id uuid.UUID, userID string) error {
	return m.store.MarkRead(ctx, id, userID, m.now())
}

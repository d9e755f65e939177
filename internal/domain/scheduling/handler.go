package scheduling

import (
	"context"
	"errors"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careslot/careslot/internal/platform/auth"
	"github.com/careslot/careslot/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – any authenticated user
	api.GET("/doctors/by-name", h.FindDoctor)
	api.GET("/doctors/:doctorId/template", h.GetTemplate)
	api.GET("/doctors/:doctorId/slots", h.GetSlots)
	api.GET("/doctors/:doctorId/calendar", h.GetCalendar)
	api.GET("/bookings", h.ListBookings)
	api.GET("/bookings/:id", h.GetBooking)

	// Doctors manage their own template and bookings
	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.PUT("/doctors/:doctorId/template", h.SaveTemplate, auth.RequireSelf("doctorId"))
	doctor.PUT("/bookings/:id/status", h.UpdateStatus)

	patient := api.Group("", auth.RequireRole(auth.RolePatient))
	patient.POST("/bookings", h.CreateBooking)
	patient.POST("/bookings/:id/reviews", h.AddReview)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

var kindStatus = map[ErrorKind]int{
	KindValidation:        http.StatusBadRequest,
	KindNotFound:          http.StatusNotFound,
	KindConflict:          http.StatusConflict,
	KindInvalidTransition: http.StatusConflict,
	KindForbidden:         http.StatusForbidden,
}

// fail writes scheduling errors as {"error": {"kind", "message"}} and hands
// anything else to echo as a 500.
func fail(c echo.Context, err error) error {
	var e *Error
	if errors.As(err, &e) {
		status, ok := kindStatus[e.Kind]
		if !ok {
			status = http.StatusBadRequest
		}
		return c.JSON(status, errorBody{Error: errorDetail{Kind: e.Kind, Message: e.Message}})
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

func actorFrom(ctx context.Context) Actor {
	return Actor{ID: auth.UserIDFromContext(ctx), Admin: auth.IsAdmin(ctx)}
}

func parseDate(c echo.Context, name string, required bool) (*civil.Date, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		if required {
			return nil, ValidationError("%s is required", name)
		}
		return nil, nil
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return nil, ValidationError("%s must be YYYY-MM-DD", name)
	}
	return &d, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, ValidationError("invalid booking id")
	}
	return id, nil
}

// -- Doctor Handlers --

func (h *Handler) FindDoctor(c echo.Context) error {
	d, err := h.svc.FindDoctorByName(c.Request().Context(), c.QueryParam("name"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) SaveTemplate(c echo.Context) error {
	var t Template
	if err := c.Bind(&t); err != nil {
		return fail(c, ValidationError("invalid template body: %v", err))
	}
	t.DoctorID = DoctorID(c.Param("doctorId"))
	if err := h.svc.SaveTemplate(c.Request().Context(), &t); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) GetTemplate(c echo.Context) error {
	t, err := h.svc.GetTemplate(c.Request().Context(), DoctorID(c.Param("doctorId")))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) GetSlots(c echo.Context) error {
	date, err := parseDate(c, "date", true)
	if err != nil {
		return fail(c, err)
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), DoctorID(c.Param("doctorId")), *date)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, DaySlots{Date: *date, Day: WeekdayOf(*date), Slots: slots})
}

func (h *Handler) GetCalendar(c echo.Context) error {
	from, err := parseDate(c, "from", true)
	if err != nil {
		return fail(c, err)
	}
	to, err := parseDate(c, "to", true)
	if err != nil {
		return fail(c, err)
	}
	days, err := h.svc.Calendar(c.Request().Context(), DoctorID(c.Param("doctorId")), *from, *to)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"days": days})
}

// -- Booking Handlers --

func (h *Handler) CreateBooking(c echo.Context) error {
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, ValidationError("invalid booking body: %v", err))
	}
	ctx := c.Request().Context()
	if actor := actorFrom(ctx); !actor.Admin && string(req.PatientID) != actor.ID {
		return fail(c, ForbiddenError("cannot book on behalf of another patient"))
	}
	b, err := h.svc.CreateBooking(ctx, req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBooking(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, err)
	}
	ctx := c.Request().Context()
	b, err := h.svc.GetBooking(ctx, id, actorFrom(ctx))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBookings(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	var (
		items []*Booking
		total int
		err   error
	)
	switch {
	case c.QueryParam("doctor_id") != "":
		date, derr := parseDate(c, "date", false)
		if derr != nil {
			return fail(c, derr)
		}
		items, total, err = h.svc.ListByDoctor(ctx, DoctorID(c.QueryParam("doctor_id")), date, pg.Limit, pg.Offset)
	case c.QueryParam("patient_id") != "":
		items, total, err = h.svc.ListByPatient(ctx, PatientID(c.QueryParam("patient_id")), pg.Limit, pg.Offset)
	default:
		return fail(c, ValidationError("doctor_id or patient_id is required"))
	}
	if err != nil {
		return fail(c, err)
	}
	if items == nil {
		items = []*Booking{}
	}

	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset)
	resp.Links = pg.Links(c.Request().URL.Path, c.QueryParams(), total)
	return c.JSON(http.StatusOK, resp)
}

type statusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, err)
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, ValidationError("invalid status body: %v", err))
	}
	ctx := c.Request().Context()
	b, err := h.svc.Transition(ctx, id, req.Status, actorFrom(ctx))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

type reviewRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

func (h *Handler) AddReview(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, err)
	}
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, ValidationError("invalid review body: %v", err))
	}
	ctx := c.Request().Context()
	b, err := h.svc.AddReview(ctx, id, PatientID(auth.UserIDFromContext(ctx)), req.Rating, req.Review)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

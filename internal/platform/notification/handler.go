package notification

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careslot/careslot/internal/platform/auth"
)

// Handler exposes the caller's notifications over HTTP via Echo.
type Handler struct {
	manager *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{manager: mgr}
}

// RegisterRoutes registers all notification routes on the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.HandleList)
	g.PUT("/notifications/:id/read", h.HandleMarkRead)
}

// HandleList handles GET /notifications?limit=N.
func (h *Handler) HandleList(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	limit := DefaultListLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 100")
		}
		limit = n
	}

	list, err := h.manager.ListForUser(c.Request().Context(), userID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if list == nil {
		list = []*Notification{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"notifications": list})
}

// HandleMarkRead handles PUT /notifications/:id/read.
func (h *Handler) HandleMarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	userID := auth.UserIDFromContext(c.Request().Context())
	if err := h.manager.MarkRead(c.Request().Context(), id, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "notification not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

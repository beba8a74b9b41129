package alerts

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/store"
)

type Handler struct {
	store store.Reader
}

func NewHandler(st store.Reader) *Handler {
	return &Handler{store: st}
}

// ListNotifications returns the caller's in-app notifications, newest first
func (h *Handler) ListNotifications(c echo.Context) error {
	userID := authz.FromContext(c).Subject()
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	items, err := h.store.ListNotifications(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load notifications"})
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": items})
}

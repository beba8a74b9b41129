package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/utils"
)

type ResolveRequest struct {
	Outcome models.DisputeOutcome `json:"outcome" validate:"required,oneof=release refund"`
	Notes   string                `json:"notes" validate:"max=2000"`
}

// GET /admin/disputes
func (h *Handler) ListDisputes(c echo.Context) error {
	items, err := h.market.OpenDisputes(c.Request().Context(), authz.FromContext(c))
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"disputes": items})
}

// POST /admin/orders/:id/resolve
// release pays the seller, refund returns the escrow to the buyer.
func (h *Handler) ResolveDispute(c echo.Context) error {
	var req ResolveRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	o, err := h.market.ResolveDispute(c.Request().Context(), authz.FromContext(c), c.Param("id"), req.Outcome, req.Notes)
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "resolved", "order": o, "resolution": req.Outcome})
}

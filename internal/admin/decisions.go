package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/utils"
)

// DecisionRequest is the body of an approve/reject call.
type DecisionRequest struct {
	Decision models.Decision `json:"decision" validate:"required,oneof=approve reject"`
	Note     string          `json:"note" validate:"max=1024"`
}

// GET /admin/deposits/pending
func (h *Handler) PendingDeposits(c echo.Context) error {
	items, err := h.wallets.PendingDeposits(c.Request().Context(), authz.FromContext(c))
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"pending_deposits": items})
}

// GET /admin/withdrawals/pending
func (h *Handler) PendingWithdrawals(c echo.Context) error {
	items, err := h.wallets.PendingWithdrawals(c.Request().Context(), authz.FromContext(c))
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"pending_withdrawals": items})
}

// POST /admin/deposits/:id/decision
// Approval credits the wallet in the same transaction that resolves the request.
func (h *Handler) DecideDeposit(c echo.Context) error {
	var req DecisionRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	d, err := h.wallets.DecideDeposit(c.Request().Context(), authz.FromContext(c), c.Param("id"), req.Decision, req.Note)
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// POST /admin/withdrawals/:id/decision
func (h *Handler) DecideWithdrawal(c echo.Context) error {
	var req DecisionRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	w, err := h.wallets.DecideWithdrawal(c.Request().Context(), authz.FromContext(c), c.Param("id"), req.Decision, req.Note)
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, w)
}

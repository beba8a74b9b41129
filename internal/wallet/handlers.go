package wallet

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/utils"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// =========================
// User endpoints
// =========================

// Balance returns the caller's available and escrow balances for one currency
func (h *Handler) Balance(c echo.Context) error {
	w, err := h.svc.Balance(c.Request().Context(), authz.FromContext(c), c.Param("currency"))
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":   w.UserID,
		"currency":  w.Currency,
		"available": w.Available,
		"escrow":    w.Escrow,
		"total":     w.Total(),
	})
}

// History lists ledger entries touching the caller's wallet, oldest first
func (h *Handler) History(c echo.Context) error {
	limit, offset := utils.Page(c)
	entries, err := h.svc.History(c.Request().Context(), authz.FromContext(c), c.Param("currency"), limit, offset)
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"entries": entries, "limit": limit, "offset": offset})
}

func (h *Handler) SubmitDeposit(c echo.Context) error {
	var req DepositInput
	if err := utils.BindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	d, err := h.svc.SubmitDeposit(c.Request().Context(), authz.FromContext(c), req)
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) SubmitWithdrawal(c echo.Context) error {
	var req WithdrawalInput
	if err := utils.BindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	w, err := h.svc.SubmitWithdrawal(c.Request().Context(), authz.FromContext(c), req)
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusCreated, w)
}

package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/utils"
)

// CurrencyTotals sums every wallet in one currency.
type CurrencyTotals struct {
	Wallets   int             `json:"wallets"`
	Available decimal.Decimal `json:"available"`
	Escrow    decimal.Decimal `json:"escrow"`
}

// GET /admin/stats
func (h *Handler) Stats(c echo.Context) error {
	if err := authz.Require(authz.FromContext(c), authz.ViewLedger); err != nil {
		return utils.RespondError(c, err)
	}
	ctx := c.Request().Context()

	wallets, err := h.store.ListWallets(ctx)
	if err != nil {
		return utils.RespondError(c, err)
	}
	deposits, err := h.store.ListDeposits(ctx, models.RequestPending)
	if err != nil {
		return utils.RespondError(c, err)
	}
	withdrawals, err := h.store.ListWithdrawals(ctx, models.RequestPending)
	if err != nil {
		return utils.RespondError(c, err)
	}
	disputes, err := h.store.ListDisputes(ctx, models.DisputeOpen)
	if err != nil {
		return utils.RespondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"currencies":          totals(wallets),
		"pending_deposits":    len(deposits),
		"pending_withdrawals": len(withdrawals),
		"open_disputes":       len(disputes),
	})
}

func totals(wallets []models.Wallet) map[string]CurrencyTotals {
	out := make(map[string]CurrencyTotals)
	for _, w := range wallets {
		t := out[w.Currency]
		t.Wallets++
		t.Available = t.Available.Add(w.Available)
		t.Escrow = t.Escrow.Add(w.Escrow)
		out[w.Currency] = t
	}
	return out
}

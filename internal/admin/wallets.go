package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/utils"
)

// GET /admin/wallets
func (h *Handler) ListWallets(c echo.Context) error {
	if err := authz.Require(authz.FromContext(c), authz.ViewLedger); err != nil {
		return utils.RespondError(c, err)
	}
	wallets, err := h.store.ListWallets(c.Request().Context())
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"wallets": wallets})
}

// GET /admin/wallets/:user/:currency/reconcile
// Replays the wallet's ledger and reports any drift from the stored balances.
func (h *Handler) Reconcile(c echo.Context) error {
	key := models.WalletKey{UserID: c.Param("user"), Currency: c.Param("currency")}
	drift, err := h.wallets.Reconcile(c.Request().Context(), authz.FromContext(c), key)
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":            drift.Wallet.UserID,
		"currency":           drift.Wallet.Currency,
		"available":          drift.Wallet.Available,
		"escrow":             drift.Wallet.Escrow,
		"expected_available": drift.ExpectedAvailable,
		"expected_escrow":    drift.ExpectedEscrow,
		"entries":            drift.Entries,
		"in_sync":            drift.InSync(),
	})
}

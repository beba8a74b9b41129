// Package admin is the HTTP surface for operators: deposit and withdrawal
// decisions, dispute resolution and ledger inspection.
package admin

import (
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/marketplace"
	"github.com/sudo-init-do/gamevault/internal/store"
	"github.com/sudo-init-do/gamevault/internal/wallet"
)

type Handler struct {
	wallets *wallet.Service
	market  *marketplace.Service
	store   store.Reader
	catalog store.CatalogWriter
}

func NewHandler(w *wallet.Service, m *marketplace.Service, st store.Reader, catalog store.CatalogWriter) *Handler {
	return &Handler{wallets: w, market: m, store: st, catalog: catalog}
}

// Register mounts the admin routes on g. g must already resolve the caller's
// principal.
func (h *Handler) Register(g *echo.Group) {
	g.Use(authz.AdminGuard)

	g.GET("/deposits/pending", h.PendingDeposits)
	g.POST("/deposits/:id/decision", h.DecideDeposit)
	g.GET("/withdrawals/pending", h.PendingWithdrawals)
	g.POST("/withdrawals/:id/decision", h.DecideWithdrawal)

	g.GET("/disputes", h.ListDisputes)
	g.POST("/orders/:id/resolve", h.ResolveDispute)

	g.GET("/wallets", h.ListWallets)
	g.GET("/wallets/:user/:currency/reconcile", h.Reconcile)
	g.GET("/stats", h.Stats)

	g.PUT("/products/:id", h.PutProduct)
}

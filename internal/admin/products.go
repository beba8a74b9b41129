package admin

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/utils"
)

type ProductRequest struct {
	SellerID     string          `json:"seller_id" validate:"required"`
	Title        string          `json:"title" validate:"required,max=200"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency" validate:"required,len=3,alpha"`
	Available    bool            `json:"available"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
}

// PUT /admin/products/:id
// Listings normally arrive from the catalog; this keeps the products table
// editable for operators and seeding.
func (h *Handler) PutProduct(c echo.Context) error {
	if err := authz.Require(authz.FromContext(c), authz.ManageCatalog); err != nil {
		return utils.RespondError(c, err)
	}
	var req ProductRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := utils.CheckAmount(req.Price); err != nil {
		return utils.RespondError(c, err)
	}
	if req.ExchangeRate.IsNegative() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "exchange_rate must not be negative"})
	}

	p := models.Product{
		ID:           c.Param("id"),
		SellerID:     req.SellerID,
		Title:        req.Title,
		Price:        req.Price,
		Currency:     strings.ToUpper(req.Currency),
		Available:    req.Available,
		ExchangeRate: req.ExchangeRate,
	}
	if err := h.catalog.PutProduct(c.Request().Context(), p); err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

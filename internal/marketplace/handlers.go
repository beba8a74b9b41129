package marketplace

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

type CheckoutRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}

type DisputeRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

type ReviewRequest struct {
	ReviewID string `json:"review_id" validate:"required"`
}

// =========================
// Checkout - buyer places order and escrows the price
// =========================
func (h *Handler) Checkout(c echo.Context) error {
	var req CheckoutRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	o, err := h.svc.Checkout(c.Request().Context(), authz.FromContext(c), req.ProductID)
	if err != nil {
		if o != nil {
			// order exists but funding failed; the buyer can retry /fund
			return c.JSON(utils.ErrorStatus(err), echo.Map{"error": err.Error(), "order": o})
		}
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) Fund(c echo.Context) error {
	o, err := h.svc.Fund(c.Request().Context(), authz.FromContext(c), c.Param("id"))
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) Get(c echo.Context) error {
	o, err := h.svc.Get(c.Request().Context(), authz.FromContext(c), c.Param("id"))
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// =========================
// Delivery and settlement
// =========================
func (h *Handler) MarkDelivered(c echo.Context) error {
	o, err := h.svc.MarkDelivered(c.Request().Context(), authz.FromContext(c), c.Param("id"))
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ConfirmDelivery(c echo.Context) error {
	o, err := h.svc.ConfirmDelivery(c.Request().Context(), authz.FromContext(c), c.Param("id"))
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) Cancel(c echo.Context) error {
	o, err := h.svc.Cancel(c.Request().Context(), authz.FromContext(c), c.Param("id"))
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// =========================
// Disputes and reviews
// =========================
func (h *Handler) RaiseDispute(c echo.Context) error {
	var req DisputeRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	d, err := h.svc.RaiseDispute(c.Request().Context(), authz.FromContext(c), c.Param("id"), req.Reason)
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) AttachReview(c echo.Context) error {
	var req ReviewRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	o, err := h.svc.AttachReview(c.Request().Context(), authz.FromContext(c), c.Param("id"), req.ReviewID)
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// Product returns a listing with its price in the seller's display currency
func (h *Handler) Product(c echo.Context) error {
	p, err := h.svc.catalog.ProductByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return utils.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"product":       p,
		"display_price": p.DisplayPrice(),
	})
}

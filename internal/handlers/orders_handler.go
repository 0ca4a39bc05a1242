package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/progRizvi/MarketMate/internal/dispatch"
	"github.com/progRizvi/MarketMate/internal/orders"
	"github.com/progRizvi/MarketMate/internal/validation"
)

// RegisterOrderRoutes registers the order API consumed by checkout.
func RegisterOrderRoutes(r *gin.Engine, engine *orders.Engine, dispatcher *dispatch.Dispatcher) {
	v := validation.New()

	r.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		items := make([]orders.LineItem, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, orders.LineItem{
				ProductID:      it.ProductID,
				Name:           it.Name,
				Quantity:       it.Quantity,
				UnitPriceCents: it.UnitPriceCents,
			})
		}

		o, err := engine.Create(ctx, orders.CreateOrderInput{
			BuyerID:       req.BuyerID,
			ShopID:        req.ShopID,
			Currency:      req.Currency,
			Items:         items,
			TaxCents:      req.TaxCents,
			ShippingCents: req.ShippingCents,
		})
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, o)
	})

	r.GET("/orders/:id", func(c *gin.Context) {
		o, err := engine.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	})

	r.POST("/orders/:id/cancel", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CancelOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		o, ev, err := engine.Cancel(ctx, c.Param("id"), req.Reason, req.Version)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		if ev != nil {
			if err := dispatcher.Dispatch(ctx, *ev); err != nil {
				// the transition is committed but its effects are not
				// enqueued; the caller must retry the dispatch path
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dispatch_failed", "msg": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, o)
	})

	r.POST("/orders/:id/ship", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.ShipOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		o, ev, err := engine.Ship(ctx, c.Param("id"), req.Version)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		if ev != nil {
			if err := dispatcher.Dispatch(ctx, *ev); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dispatch_failed", "msg": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, o)
	})

	r.POST("/orders/:id/complete", func(c *gin.Context) {
		var req validation.CompleteOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		o, err := engine.Complete(c.Request.Context(), c.Param("id"), req.Version)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	})
}

// writeDomainError maps the engine's error taxonomy onto HTTP statuses.
// Validation-class errors are the caller's fault and never retried;
// conflicts tell the caller to reload and try again.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
	case errors.Is(err, orders.ErrInvalidItems):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_items", "msg": err.Error()})
	case errors.Is(err, orders.ErrAmountMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_mismatch", "msg": err.Error()})
	case errors.Is(err, orders.ErrRefundExceedsPaid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "refund_exceeds_paid", "msg": err.Error()})
	case errors.Is(err, orders.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "msg": err.Error()})
	case errors.Is(err, orders.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent_modification", "msg": "reload the order and retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "msg": err.Error()})
	}
}

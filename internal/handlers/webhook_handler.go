package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/progRizvi/MarketMate/internal/payments"
)

// SignatureHeader carries the provider's HMAC signature.
const SignatureHeader = "X-Webhook-Signature"

// webhookBudget bounds one delivery's processing; past it we answer
// retry-eligible and let the provider redeliver instead of holding the
// connection open.
const webhookBudget = 10 * time.Second

// RegisterWebhookRoutes registers the payment provider webhook endpoint.
// Providers get a binary accept/retry signal, never structured errors.
func RegisterWebhookRoutes(r *gin.Engine, ingestor *payments.Ingestor) {
	r.POST("/webhooks/payments", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), webhookBudget)
		defer cancel()

		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"received": false})
			return
		}

		err = ingestor.Process(ctx, c.GetHeader(SignatureHeader), body)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"received": true})
		case errors.Is(err, payments.ErrUnauthenticatedWebhook):
			c.JSON(http.StatusUnauthorized, gin.H{"received": false})
		case errors.Is(err, payments.ErrMalformedEvent):
			c.JSON(http.StatusBadRequest, gin.H{"received": false})
		default:
			// retry-eligible: the provider's redelivery loop tries again
			c.JSON(http.StatusInternalServerError, gin.H{"received": false})
		}
	})
}

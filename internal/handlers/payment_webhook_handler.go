package handlers

import (
	"io"
	"net/http"

	"github.com/ctmsgb/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// maxWebhookBody bounds the provider payload read into memory
const maxWebhookBody = 1 << 20

// PaymentWebhookHandler receives provider payment notifications
type PaymentWebhookHandler struct {
	webhooks *services.PaymentWebhookService
	logger   *logrus.Logger
}

// NewPaymentWebhookHandler creates a new PaymentWebhookHandler
func NewPaymentWebhookHandler(webhooks *services.PaymentWebhookService, logger *logrus.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{
		webhooks: webhooks,
		logger:   logger,
	}
}

// HandleWebhook verifies and applies a signed provider event.
// The signature covers the raw body, so it is read before any decoding.
// @Summary Payment provider webhook
// @Tags Payments
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "t=<unix>,v1=<hmac>"
// @Success 200 {object} services.WebhookResult
// @Failure 400 {object} map[string]interface{} "Bad signature or payload"
// @Failure 404 {object} map[string]interface{} "Booking or payment not found"
// @Router /api/v1/payments/webhook [post]
func (h *PaymentWebhookHandler) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Unable to read request body."})
		return
	}

	result, err := h.webhooks.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

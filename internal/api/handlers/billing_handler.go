package handlers

import (
	"receiptflow/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type BillingHandler struct {
	billing *service.BillingService
	logger  *zap.Logger
}

func NewBillingHandler(billing *service.BillingService, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billing,
		logger:  logger,
	}
}

// StripeWebhook godoc
// @Summary Stripe webhook
// @Description Applies customer.subscription events to the owning company
// @Tags billing
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe signature"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} map[string]string
// @Router /billing/stripe/webhook [post]
func (h *BillingHandler) StripeWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	if err := h.billing.HandleWebhook(c.Context(), payload, c.Get("Stripe-Signature")); err != nil {
		return respondError(c, h.logger, err, "Failed to handle webhook")
	}
	return c.JSON(fiber.Map{"received": true})
}

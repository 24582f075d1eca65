package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubscriptionChecker reports whether a company may use the pipeline.
type SubscriptionChecker interface {
	CanProcess(ctx context.Context, companyID uuid.UUID) (bool, error)
}

// RequireActiveSubscription blocks companies whose subscription was
// cancelled or left unpaid. It must run after AuthMiddleware.
func RequireActiveSubscription(checker SubscriptionChecker, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, _ := c.Locals("companyID").(string)
		companyID, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		ok, err := checker.CanProcess(c.UserContext(), companyID)
		if err != nil {
			logger.Error("Failed to check subscription", zap.Error(err), zap.String("company_id", raw))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to check subscription",
			})
		}
		if !ok {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error": "Subscription inactive",
			})
		}
		return c.Next()
	}
}

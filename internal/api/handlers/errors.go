package handlers

import (
	"errors"

	"receiptflow/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// respondError maps service errors onto status codes. Anything unknown is
// logged and reported as msg with a 500.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error, msg string) error {
	var fieldErrs service.FieldErrors
	var validationErr *service.ValidationFailedError

	switch {
	case errors.As(err, &fieldErrs):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Invalid input",
			"fields": fieldErrs,
		})
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":    "Validation failed",
			"errors":   validationErr.Messages(),
			"problems": validationErr.Problems,
		})
	case errors.Is(err, service.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Not found",
		})
	case errors.Is(err, service.ErrUserExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "User already exists",
		})
	case errors.Is(err, service.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	case errors.Is(err, service.ErrInvalidSignature):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid signature",
		})
	case errors.Is(err, service.ErrExtractionFailed):
		logger.Warn(msg, zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Extraction service unavailable, try again later",
		})
	}

	logger.Error(msg, zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}

func getUserID(c *fiber.Ctx) (uuid.UUID, error) {
	return localUUID(c, "userID")
}

func getCompanyID(c *fiber.Ctx) (uuid.UUID, error) {
	return localUUID(c, "companyID")
}

func localUUID(c *fiber.Ctx, key string) (uuid.UUID, error) {
	raw, ok := c.Locals(key).(string)
	if !ok {
		return uuid.Nil, fiber.ErrUnauthorized
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, err
	}

	return id, nil
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Unauthorized",
	})
}

// paramID parses the :id route parameter.
func paramID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	return id, err == nil
}

func invalidID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Invalid ID",
	})
}

// bindJSON parses the request body into dst and reports whether it succeeded.
func bindJSON(c *fiber.Ctx, dst any) bool {
	return c.BodyParser(dst) == nil
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
}

package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"receiptflow/pkg/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedChecker bool

func (f fixedChecker) CanProcess(context.Context, uuid.UUID) (bool, error) {
	return bool(f), nil
}

func newApp(m *auth.JWTManager, checker SubscriptionChecker) *fiber.App {
	app := fiber.New()
	app.Get("/x", AuthMiddleware(m, zap.NewNop()), RequireActiveSubscription(checker, zap.NewNop()), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("companyID").(string))
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	m := auth.NewJWTManager("secret", time.Hour, time.Hour)
	companyID := uuid.NewString()
	token, err := m.GenerateToken(uuid.NewString(), companyID, "bob", "b@example.com")
	require.NoError(t, err)

	app := newApp(m, fixedChecker(true))

	req := httptest.NewRequest("GET", "/x", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireActiveSubscription(t *testing.T) {
	m := auth.NewJWTManager("secret", time.Hour, time.Hour)
	token, err := m.GenerateToken(uuid.NewString(), uuid.NewString(), "bob", "b@example.com")
	require.NoError(t, err)

	app := newApp(m, fixedChecker(false))
	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
}

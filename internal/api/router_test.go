package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"receiptflow/internal/api/handlers"
	"receiptflow/pkg/auth"
	"receiptflow/pkg/config"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type inactive struct{}

func (inactive) CanProcess(context.Context, uuid.UUID) (bool, error) { return false, nil }

func testApp(t *testing.T) (*fiber.App, *auth.JWTManager) {
	t.Helper()
	logger := zap.NewNop()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour, 24*time.Hour)
	app := SetupRouter(
		&config.ServerConfig{BodyLimitMB: 1, ReadTimeout: time.Second, WriteTimeout: time.Second},
		Handlers{
			Auth:      handlers.NewAuthHandler(nil, logger),
			Documents: handlers.NewDocumentHandler(nil, logger),
			Digitized: handlers.NewDigitizedHandler(nil, logger),
			Export:    handlers.NewExportHandler(nil, logger),
			Vendors:   handlers.NewVendorHandler(nil, logger),
			Billing:   handlers.NewBillingHandler(nil, logger),
		},
		jwtManager,
		inactive{},
		logger,
	)
	return app, jwtManager
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app, _ := testApp(t)

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/documents"},
		{http.MethodPost, "/api/v1/documents/upload"},
		{http.MethodPut, "/api/v1/digitized/" + uuid.NewString()},
		{http.MethodPost, "/api/v1/ready/export"},
		{http.MethodGet, "/api/v1/vendors/51824753556"},
	} {
		resp, err := app.Test(httptest.NewRequest(r.method, r.path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, r.path)
	}
}

func TestInactiveSubscriptionBlocksPipeline(t *testing.T) {
	app, jwtManager := testApp(t)
	token, err := jwtManager.GenerateToken(uuid.NewString(), uuid.NewString(), "kim", "kim@example.com")
	require.NoError(t, err)

	for _, path := range []string{
		"/api/v1/documents/upload",
		"/api/v1/documents/" + uuid.NewString() + "/digitize",
		"/api/v1/ready/export",
	} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode, path)
	}
}

func TestHealth(t *testing.T) {
	app, _ := testApp(t)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

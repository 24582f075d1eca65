package api

import (
	"receiptflow/docs"
	"receiptflow/internal/api/handlers"
	"receiptflow/pkg/auth"
	"receiptflow/pkg/config"
	"receiptflow/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	Documents *handlers.DocumentHandler
	Digitized *handlers.DigitizedHandler
	Export    *handlers.ExportHandler
	Vendors   *handlers.VendorHandler
	Billing   *handlers.BillingHandler
}

func SetupRouter(
	cfg *config.ServerConfig,
	h Handlers,
	jwtManager *auth.JWTManager,
	subscriptions middleware.SubscriptionChecker,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:    cfg.BodyLimitMB * 1024 * 1024,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())

	// Importing docs registers the swagger document in its init().
	_ = docs.SwaggerInfo
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Auth routes (public)
	authRoutes := app.Group("/user/auth")
	authRoutes.Post("/register", h.Auth.Register)
	authRoutes.Post("/login", h.Auth.Login)
	authRoutes.Post("/refresh", h.Auth.RefreshToken)

	// Stripe calls this without a bearer token; the payload is signed.
	app.Post("/billing/stripe/webhook", h.Billing.StripeWebhook)

	// Protected routes
	protected := app.Group("/api/v1", middleware.AuthMiddleware(jwtManager, appLogger))
	active := middleware.RequireActiveSubscription(subscriptions, appLogger)

	documents := protected.Group("/documents")
	documents.Post("/upload", active, h.Documents.UploadDocument)
	documents.Get("", h.Documents.ListDocuments)
	documents.Post("/:id/digitize", active, h.Documents.DigitizeDocument)

	digitized := protected.Group("/digitized")
	digitized.Get("", h.Digitized.ListDigitized)
	digitized.Get("/:id", h.Digitized.GetDigitized)
	digitized.Put("/:id", h.Digitized.EditDigitized)
	digitized.Delete("/:id", h.Digitized.DeleteDigitized)
	digitized.Post("/:id/ready", h.Digitized.MoveToReady)

	protected.Get("/review", h.Digitized.ListReview)
	protected.Get("/ready", h.Digitized.ListReady)
	protected.Post("/ready/export", active, h.Export.Export)
	protected.Get("/reported", h.Digitized.ListReported)

	protected.Get("/exports", h.Export.ListExportHistory)
	protected.Get("/exports/files/:name", h.Export.DownloadExport)

	protected.Get("/vendors/:abn", h.Vendors.GetVendor)

	return app
}

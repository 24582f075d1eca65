package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"receiptflow/internal/abr"
	"receiptflow/internal/api"
	"receiptflow/internal/api/handlers"
	"receiptflow/internal/export"
	"receiptflow/internal/extraction"
	"receiptflow/internal/models"
	"receiptflow/internal/repository"
	"receiptflow/internal/service"
	"receiptflow/internal/storage"
	"receiptflow/pkg/auth"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the database schema before starting")
	return cmd
}

func serve(ctx context.Context, migrate bool) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, appLogger := a.cfg, a.logger
	appLogger.Info("Starting receiptflow service")

	if migrate {
		if err := repository.Migrate(ctx, a.db, appLogger); err != nil {
			return err
		}
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(a.db, appLogger)
	companyRepo := repository.NewCompanyRepository(a.db, appLogger)
	docRepo := repository.NewDocumentRepository(a.db, appLogger)
	stageRepo := repository.NewStageRepository(a.db, appLogger)
	historyRepo := repository.NewExportHistoryRepository(a.db, appLogger)
	vendorRepo := repository.NewVendorRepository(a.db, appLogger)

	files, err := storage.New(ctx, &cfg.Storage, appLogger)
	if err != nil {
		return err
	}

	extractor, closer, err := extraction.New(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize extraction: %w", err)
	}
	defer closer.Close()

	exporters := export.Registry{
		models.ExportModeExcel: export.NewExcel(),
		models.ExportModePDF:   export.NewPDF("Receipts"),
	}
	if cfg.Xero.ClientID != "" {
		exporters[models.ExportModeXeroBill] = export.NewXero(ctx, &cfg.Xero, models.ExportModeXeroBill, appLogger)
		exporters[models.ExportModeXeroSpend] = export.NewXero(ctx, &cfg.Xero, models.ExportModeXeroSpend, appLogger)
	} else {
		appLogger.Warn("Xero is not configured, Xero export modes are disabled")
	}

	// Initialize services
	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration, cfg.JWT.RefreshExp)
	authService := service.NewAuthService(userRepo, jwtManager, appLogger)
	billingService := service.NewBillingService(companyRepo, cfg.Stripe.WebhookSecret, appLogger)
	vendorService := service.NewVendorService(vendorRepo, abr.NewClient(&cfg.ABR, appLogger), cfg.ABR.Timeout, appLogger)
	lifecycleService := service.NewLifecycleService(docRepo, stageRepo, files, extractor, vendorService, service.LifecycleConfig{
		ExtractionTimeout: cfg.Extraction.Timeout,
		Fallback:          cfg.Extraction.Fallback,
		StaleAfter:        cfg.ProcessingStaleAfter,
	}, appLogger)
	exportService := service.NewExportService(stageRepo, historyRepo, files, exporters, cfg.Export.Concurrency, appLogger)

	app := api.SetupRouter(&cfg.Server, api.Handlers{
		Auth:      handlers.NewAuthHandler(authService, appLogger),
		Documents: handlers.NewDocumentHandler(lifecycleService, appLogger),
		Digitized: handlers.NewDigitizedHandler(lifecycleService, appLogger),
		Export:    handlers.NewExportHandler(exportService, appLogger),
		Vendors:   handlers.NewVendorHandler(vendorService, appLogger),
		Billing:   handlers.NewBillingHandler(billingService, appLogger),
	}, jwtManager, billingService, appLogger)

	// Start server
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
	vendorService.Wait()
	return nil
}

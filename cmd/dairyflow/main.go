package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"dairyflow/internal/billing"
	"dairyflow/internal/cli"
	apphttp "dairyflow/internal/http"
	"dairyflow/internal/log"
	"dairyflow/internal/report"
	"dairyflow/internal/services"
	"dairyflow/internal/settings"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)
	store := res.Store

	// Settings are read once at startup and refreshed on every PUT.
	mgr := settings.NewManager(store, logger.WithComponent(log.ComponentSettings))
	if err := mgr.Load(context.Background()); err != nil {
		logger.Error("Failed to load settings", log.FieldError, err)
		cli.Cleanup(logger, res)
		os.Exit(1)
	}

	billingLogger := logger.WithComponent(log.ComponentBilling)
	deps := apphttp.Deps{
		Customers: services.NewCustomerService(store, mgr, logger),
		Milk:      services.NewMilkService(store, mgr, logger),
		Expenses:  services.NewExpenseService(store, logger),
		Builder:   billing.NewBuilder(store, mgr, res.Events, billingLogger),
		Lifecycle: billing.NewLifecycle(store, res.Events, billingLogger),
		Reports:   report.NewService(store, logger.WithComponent(log.ComponentReport)),
		Settings:  mgr,
		Entries:   store,
		Ready:     res.Ping,
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps, logger.WithComponent(log.ComponentHTTP))
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cli.Cleanup(logger, res)
	})

	logger.Info("Starting dairyflow server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"bill_events", res.Events != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		cli.Cleanup(logger, res)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

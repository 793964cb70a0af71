package main

import (
	"context"
	"os"
	"time"

	"dairyflow/internal/billing"
	"dairyflow/internal/cli"
	"dairyflow/internal/log"
	"dairyflow/internal/scheduler"
	"dairyflow/internal/services"
	"dairyflow/internal/settings"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentScheduler)
	logger.Info("Starting billing-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	res := cli.InitBackend(context.Background(), logger, cfg)

	// The scheduler reloads mgr before each run, so settings saved through
	// the API apply to the next batch.
	mgr := settings.NewManager(res.Store, logger.WithComponent(log.ComponentSettings))
	if err := mgr.Load(context.Background()); err != nil {
		logger.Error("Failed to load settings", log.FieldError, err)
		cli.Cleanup(logger, res)
		os.Exit(1)
	}

	billingLogger := logger.WithComponent(log.ComponentBilling)
	builder := billing.NewBuilder(res.Store, mgr, res.Events, billingLogger)
	lifecycle := billing.NewLifecycle(res.Store, res.Events, billingLogger)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid billing timezone", log.FieldError, err)
		cli.Cleanup(logger, res)
		os.Exit(1)
	}
	sched, err := scheduler.New(scheduler.Config{
		Schedule: cfg.BillingCron,
		Location: loc,
	}, builder, mgr, logger)
	if err != nil {
		logger.Error("Failed to create scheduler", log.FieldError, err)
		cli.Cleanup(logger, res)
		os.Exit(1)
	}

	processor := services.NewReconcileProcessor(lifecycle, services.ReconcileProcessorConfig{
		PollInterval: cfg.ReconcileInterval,
		MinAge:       cfg.ReconcileMinAge,
	}, logger.WithComponent(log.ComponentWorker))

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn("Scheduled run still in progress at shutdown")
		}
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Error("Failed to stop reconcile processor", log.FieldError, err)
		}
		cli.Cleanup(logger, res)
	})

	if err := sched.Start(); err != nil {
		logger.Error("Failed to start scheduler", log.FieldError, err)
		cli.Cleanup(logger, res)
		os.Exit(1)
	}
	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start reconcile processor", log.FieldError, err)
	}

	logger.Info("Billing worker configured",
		"schedule", cfg.BillingCron,
		"timezone", loc.String(),
		"next_period", sched.Target().Key(),
		"reconcile_interval", cfg.ReconcileInterval)

	cli.WaitForShutdown(ctx, done)
	logger.Info("billing-worker stopped")
}

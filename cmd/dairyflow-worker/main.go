package main

import (
	"context"
	"errors"
	"os"
	"time"

	"dairyflow/internal/amqp"
	"dairyflow/internal/cli"
	"dairyflow/internal/core"
	"dairyflow/internal/log"
	"dairyflow/internal/sheets"
	gsheet "dairyflow/internal/sheets/google"
	memsheet "dairyflow/internal/sheets/memory"
	"dairyflow/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting dairyflow-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the bill sync worker")
		os.Exit(1)
	}
	if cfg.DataBackend != "sqlite" {
		logger.Warn("Worker is not sharing a SQLite database with the API, bills will not be found",
			"backend", cfg.DataBackend)
	}

	// The worker only reads bills, so the store is opened without a publisher.
	storeCfg := *cfg
	storeCfg.AMQPURL = ""
	res := cli.InitBackend(context.Background(), logger, &storeCfg)
	defer cli.Cleanup(logger, res)

	var writer sheets.BillWriter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Options{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		}, logger.WithComponent(log.ComponentSheets))
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		writer = memsheet.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, rows are kept in memory")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(log.ComponentAMQP))
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewBillSyncWorker(res.Store, writer, logger)

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, nil)

	// Rewrite last month's and this month's bills to recover events missed
	// while the worker was down.
	current := core.PeriodOf(core.DateOf(time.Now()))
	for _, p := range []core.Period{current.Previous(), current} {
		if _, err := syncWorker.SyncPeriod(ctx, p); err != nil {
			logger.Error("Startup sync failed", log.FieldPeriod, p.Key(), log.FieldError, err)
		}
	}

	go func() {
		if err := amqpClient.ConsumeBillEvents(ctx, syncWorker.HandleBillEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("dairyflow-worker stopped")
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"news_provisioner/internal/config"
	"news_provisioner/internal/domain"
	"news_provisioner/internal/publisher"
	"news_provisioner/internal/service"
	"news_provisioner/internal/storage/mongo"
	"news_provisioner/internal/storage/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to config file")
	check := flag.Bool("check", false, "report drift without changing the database")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}

	logger = setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bounds the whole run, not each command.
	ctx, cancel := context.WithTimeout(ctx, cfg.Mongo.ConnectTimeout+cfg.Mongo.OperationTimeout)
	defer cancel()

	store, err := mongo.Connect(mongo.Config{
		URI:              cfg.Mongo.URI,
		ConnectTimeout:   cfg.Mongo.ConnectTimeout,
		OperationTimeout: cfg.Mongo.OperationTimeout,
	})
	if err != nil {
		logger.Error("failed to configure mongo client", "error", err)
		return 1
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Warn("failed to disconnect from mongo", "error", err)
		}
	}()

	var ledger service.RunLedger
	if cfg.Ledger.Enabled() {
		db, err := sqlx.Connect("postgres", cfg.Ledger.DSN)
		if err != nil {
			logger.Warn("run ledger unavailable", "error", err)
		} else {
			defer db.Close()
			runLedger := postgres.NewRunLedger(db, postgres.NewTransactionManager(db))
			logPreviousRun(ctx, logger, runLedger, cfg.Provisioning.Database)
			ledger = runLedger
		}
	}

	var events service.Publisher
	if cfg.RabbitMQ.Enabled() && !*check {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Warn("schema events disabled", "error", err)
		} else {
			defer rabbitMQ.Close()
			events = rabbitMQ
		}
	}

	provisioner := service.NewProvisioner(store, ledger, events, cfg.Provisioning.Spec(), logger)

	var report *domain.ProvisionReport
	if *check {
		report, err = provisioner.Check(ctx)
	} else {
		report, err = provisioner.Provision(ctx)
	}
	if err != nil {
		logFailure(logger, err)
		return 1
	}

	for _, line := range report.Lines() {
		fmt.Println(line)
	}

	if *check && report.Drifted() {
		logger.Error("database has drifted", "missing", report.Count("", domain.OutcomeMissing))
		return 1
	}
	return 0
}

func logPreviousRun(ctx context.Context, logger *slog.Logger, ledger *postgres.RunLedger, database string) {
	last, err := ledger.LatestRun(ctx, database)
	if err != nil {
		logger.Warn("failed to read previous run", "error", err)
		return
	}
	if last == nil {
		logger.Info("no previous provisioning run recorded")
		return
	}
	logger.Info("previous provisioning run",
		"run_id", last.ID,
		"status", last.Status,
		"started_at", last.StartedAt,
		"steps", len(last.Steps),
	)
}

func logFailure(logger *slog.Logger, err error) {
	attrs := []any{"error", err}
	if kind := domain.Kind(err); kind != nil {
		attrs = append(attrs, "kind", kind.Error())
	}

	var stepErr *domain.StepError
	if errors.As(err, &stepErr) {
		attrs = append(attrs, "step", stepErr.Step, "entity", stepErr.Entity)
	}

	logger.Error("provisioning failed", attrs...)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}

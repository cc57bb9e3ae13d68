package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rxtech-lab/argo-grid/internal/api"
	"github.com/rxtech-lab/argo-grid/internal/config"
	"github.com/rxtech-lab/argo-grid/internal/exchange"
	"github.com/rxtech-lab/argo-grid/internal/logger"
	"github.com/rxtech-lab/argo-grid/internal/notify"
	"github.com/rxtech-lab/argo-grid/internal/orders"
	"github.com/rxtech-lab/argo-grid/internal/repository"
	"github.com/rxtech-lab/argo-grid/internal/scheduler"
	"github.com/rxtech-lab/argo-grid/internal/startup"
	"github.com/rxtech-lab/argo-grid/internal/version"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

const shutdownGrace = 10 * time.Second

func runAction(ctx context.Context, cmd *cli.Command) error {
	level := zapcore.InfoLevel
	if cmd.Bool("debug") {
		level = zapcore.DebugLevel
	}

	appLogger, err := logger.NewLoggerWithLevel(level)
	if err != nil {
		return err
	}
	defer func() { _ = appLogger.Sync() }()

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	repo, err := repository.NewDuckDBRepository(cfg.DatabasePath, appLogger)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	client, err := buildExchange(cfg)
	if err != nil {
		return err
	}

	notifier := buildNotifier(cfg, appLogger)
	executor := orders.NewExecutor(client, repo, appLogger)

	// Seed configs for pairs the repository has not seen yet.
	for _, pairCfg := range cfg.Pairs {
		if _, err := repo.GetConfig(ctx, pairCfg.Pair); err == nil {
			continue
		} else if !errors.HasCode(err, errors.ErrCodeConfigNotFound) {
			return err
		}

		if _, err := repo.SaveConfig(ctx, pairCfg.GridConfig()); err != nil {
			return err
		}

		appLogger.Info("seeded pair config", zap.String("pair", string(pairCfg.Pair)))
	}

	cleaner := startup.NewCleaner(client, repo, executor, notifier, appLogger)

	report, err := cleaner.Run(ctx)
	if err != nil {
		return err
	}

	appLogger.Info("restart cleanup done",
		zap.Int("orders_cancelled", report.OrdersCancelled),
		zap.Int("assets_liquidated", report.AssetsLiquidated))

	integrity := startup.NewIntegrityChecker(client, repo, appLogger)
	if integrityReport := integrity.Check(ctx); integrityReport.Health != startup.HealthHealthy {
		appLogger.Warn("starting in degraded health")
	}

	sched := scheduler.New(client, repo, notifier, appLogger, scheduler.Config{
		HealthCheckInterval: cfg.HealthCheckInterval,
		SummaryInterval:     cfg.SummaryInterval,
		StopTimeout:         cfg.StopTimeout,
	})

	server := api.NewServer(cfg.APIListen, sched, repo, integrity, appLogger)
	if err := server.Start(); err != nil {
		return err
	}

	// Every pair starts paused after the cleanup; trading resumes only when
	// a fresh operate decision arrives through the API.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go sched.Run(runCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		appLogger.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	if err := sched.ClearAll(shutdownCtx); err != nil {
		appLogger.Error("shutdown cleanup incomplete", zap.Error(err))
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("api shutdown incomplete", zap.Error(err))
	}

	return nil
}

func buildExchange(cfg *config.Config) (exchange.Client, error) {
	switch cfg.Mode {
	case "binance":
		return exchange.NewBinanceExchange(cfg.Binance, false), nil
	case "binance-testnet":
		return exchange.NewBinanceExchange(cfg.Binance, true), nil
	case "paper":
		paper := exchange.NewPaperExchange()
		paper.Deposit("USDT", decimal.NewFromInt(1_000_000))

		return paper, nil
	}

	return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown mode %q", cfg.Mode)
}

func buildNotifier(cfg *config.Config, appLogger *logger.Logger) notify.Notifier {
	if cfg.TelegramEnabled {
		return notify.NewTelegramNotifier(cfg.Telegram, appLogger)
	}

	return notify.NewNoopNotifier()
}

func main() {
	cmd := &cli.Command{
		Name:    "gridbot",
		Usage:   "Run the grid trading engine",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the YAML config file",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Action: runAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

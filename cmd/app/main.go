// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"donation-subscription-bot/internal/application"
	"donation-subscription-bot/internal/config"
	"donation-subscription-bot/internal/infra/adapters/donationalerts"
	tele "donation-subscription-bot/internal/infra/adapters/telegram"
	pg "donation-subscription-bot/internal/infra/db/postgres"
	"donation-subscription-bot/internal/infra/i18n"
	"donation-subscription-bot/internal/infra/logging"
	"donation-subscription-bot/internal/infra/metrics"
	red "donation-subscription-bot/internal/infra/redis"
	"donation-subscription-bot/internal/infra/sched"
	"donation-subscription-bot/internal/infra/scheduler"
	"donation-subscription-bot/internal/infra/web"
	"donation-subscription-bot/internal/infra/worker"
	"donation-subscription-bot/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no redaction)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("bot stopped with error")
	}
	logger.Info().Msg("bye")
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("channel", cfg.Channel.ID).Msg("starting donation subscription bot")

	// ---- Postgres ----
	if cfg.Database.MigrateOnStart {
		if err := pg.Migrate(cfg.Database.URL, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)
	watermark := red.NewWatermark(redisClient)

	// ---- Repositories ----
	txManager := pg.NewTxManager(pool)
	ledgerRepo := pg.NewPostgresLedgerRepo(pool)
	memberRepo := pg.NewMemberRepoCacheDecorator(pg.NewPostgresMemberRepo(pool), redisClient)
	reminderRepo := pg.NewReminderLogRepo(pool)

	// ---- i18n ----
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Locale)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}
	loc := cfg.Scheduler.Location()

	// ---- Telegram client ----
	botAPI, err := tele.NewBotAPI(&cfg.Bot)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	botAPI.Debug = cfg.Runtime.Dev
	logger.Info().Str("bot", botAPI.Self.UserName).Msg("authorized on telegram")

	// ---- Use cases ----
	feed := donationalerts.NewClient(donationalerts.OptionsFromConfig(cfg.Feed), &http.Client{}, logger)
	memberUC := usecase.NewMemberUseCase(memberRepo, txManager, logger)
	gateway := tele.NewChannelGateway(botAPI, memberUC, logger)
	ledgerUC := usecase.NewLedgerUseCase(ledgerRepo, txManager, logger)
	syncUC := usecase.NewSyncUseCase(feed, ledgerUC, watermark, locker, usecase.SyncOptions{
		Overlap:         cfg.Scheduler.SyncOverlap,
		InitialLookback: cfg.Scheduler.InitialLookback,
	}, logger)
	reconcileUC := usecase.NewReconcileUseCase(ledgerUC, gateway, locker, cfg.Channel.RevokeDelay, logger)
	accessUC := usecase.NewAccessUseCase(ledgerUC, gateway, cfg.Channel.InviteTTL, logger)
	statsUC := usecase.NewStatsUseCase(ledgerRepo, memberRepo, logger)
	exportUC := usecase.NewExportUseCase(ledgerUC, loc, logger)

	// ---- Facade + bot ----
	facade := application.NewBotFacade(memberUC, accessUC, ledgerUC, statsUC, syncUC, reconcileUC, exportUC,
		tr, cfg.Channel.ID, loc, logger)

	workerPool := worker.NewPool(cfg.Bot.Workers, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	botAdapter, err := tele.NewRealTelegramBotAdapter(botAPI, &cfg.Bot, facade, gateway, rateLimiter, workerPool, logger)
	if err != nil {
		return fmt.Errorf("telegram adapter: %w", err)
	}
	notifUC := usecase.NewNotificationUseCase(ledgerRepo, memberRepo, reminderRepo, botAdapter, tr,
		cfg.Scheduler.ReminderDays, loc, logger)

	var wg sync.WaitGroup
	goRun := func(name string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Str("component", name).Msg("stopped with error")
			}
		}()
	}

	goRun("telegram", botAdapter.StartPolling)
	goRun("sync", sched.NewSyncWorker(cfg.Scheduler.SyncInterval, cfg.Scheduler.RunTimeout, syncUC, logger).Run)
	goRun("gauges", sched.NewGaugeWorker(time.Minute, statsUC, pg.PoolStats{Pool: pool}, logger).Run)
	if cfg.Scheduler.ReminderInterval >= 0 && len(cfg.Scheduler.ReminderDays) > 0 {
		goRun("reminders", sched.NewNotificationWorker(cfg.Scheduler.ReminderInterval, cfg.Scheduler.RunTimeout, notifUC, logger).Run)
	}

	// ---- Daily reconciliation ----
	cronSched := scheduler.NewScheduler(loc, cfg.Scheduler.RunTimeout, logger)
	if err := cronSched.Add(cfg.Scheduler.ReconcileCron, "reconcile", func(ctx context.Context) error {
		_, err := reconcileUC.Run(ctx, cfg.Channel.ID)
		return err
	}); err != nil {
		return err
	}
	cronSched.Start()
	defer cronSched.Stop()

	// ---- Admin HTTP ----
	adminSrv := web.NewServer(ledgerUC, statsUC, exportUC, syncUC, reconcileUC, cfg.Channel.ID, cfg.Admin.APIKey,
		web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.SecureCookie, cfg.Admin.SessionTTL), loc, logger)
	adminSrv.AddHealthCheck("postgres", web.PingFunc(pool.Ping))
	adminSrv.AddHealthCheck("redis", redisClient)
	httpServer := web.NewHTTPServer(fmt.Sprintf(":%d", cfg.Admin.Port), adminSrv.Router())
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("admin http listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("admin http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("admin http shutdown")
	}
	botAdapter.StopPolling()
	wg.Wait()
	return nil
}

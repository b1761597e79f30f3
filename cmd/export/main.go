// Command export writes the subscription ledger to a JSON file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"donation-subscription-bot/internal/config"
	pg "donation-subscription-bot/internal/infra/db/postgres"
	"donation-subscription-bot/internal/infra/logging"
	"donation-subscription-bot/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	out := flag.String("out", "", "output file (default subscriptions_<date>.json)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, false)
	loc := cfg.Scheduler.Location()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	ledgerUC := usecase.NewLedgerUseCase(pg.NewPostgresLedgerRepo(pool), pg.NewTxManager(pool), logger)
	data, n, err := usecase.NewExportUseCase(ledgerUC, loc, logger).LedgerJSON(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("export failed")
	}

	path := *out
	if path == "" {
		path = "subscriptions_" + time.Now().In(loc).Format("2006-01-02") + ".json"
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Fatal().Err(err).Str("path", path).Msg("write export")
	}
	logger.Info().Int("entries", n).Str("path", path).Msg("ledger exported")
}

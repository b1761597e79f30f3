package usecase

import (
	"context"
	"time"

	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/domain/ports/repository"
	"donation-subscription-bot/internal/infra/logging"
	"donation-subscription-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	Summary(ctx context.Context) (*model.LedgerStats, error)
}

type statsUC struct {
	ledger  repository.LedgerRepository
	members repository.MemberRepository

	log *zerolog.Logger
}

func NewStatsUseCase(ledger repository.LedgerRepository, members repository.MemberRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{ledger: ledger, members: members, log: logger}
}

// Summary also refreshes the subscription gauges.
func (s *statsUC) Summary(ctx context.Context) (*model.LedgerStats, error) {
	defer logging.TraceDuration(s.log, "StatsUC.Summary")()
	st, err := s.ledger.Stats(ctx, repository.NoTX, time.Now())
	if err != nil {
		return nil, err
	}
	n, err := s.members.Count(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	st.Members = n
	metrics.SetSubscriptionsTotal(st)
	return st, nil
}

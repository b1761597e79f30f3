package application

import (
	"context"

	"donation-subscription-bot/internal/domain/model"
)

// ---- small interfaces to decouple the facade from concrete usecase structs ----
// These describe the minimal surface that the facade needs.

type MemberUseCaseIface interface {
	Remember(ctx context.Context, tgID int64, username string) (*model.Member, error)
}

type AccessUseCaseIface interface {
	Status(ctx context.Context, handle string) (*model.AccessStatus, error)
	Grant(ctx context.Context, channel string, tgID int64, handle string) (string, error)
}

type LedgerQueryIface interface {
	QueryByAttribution(ctx context.Context, substring string) ([]*model.LedgerEntry, error)
}

type StatsUseCaseIface interface {
	Summary(ctx context.Context) (*model.LedgerStats, error)
}

type SyncUseCaseIface interface {
	Sync(ctx context.Context) (*model.SyncReport, error)
}

type ReconcileUseCaseIface interface {
	Run(ctx context.Context, channel string) (*model.ReconcileReport, error)
}

type ExportUseCaseIface interface {
	LedgerJSON(ctx context.Context) ([]byte, int, error)
}

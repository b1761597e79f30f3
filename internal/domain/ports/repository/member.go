package repository

import (
	"context"

	"donation-subscription-bot/internal/domain/model"
)

type MemberRepository interface {
	Save(ctx context.Context, tx Tx, m *model.Member) error
	FindByTelegramID(ctx context.Context, tx Tx, tgID int64) (*model.Member, error)
	// FindByUsername is case-insensitive.
	FindByUsername(ctx context.Context, tx Tx, username string) (*model.Member, error)
	Count(ctx context.Context, tx Tx) (int, error)
}

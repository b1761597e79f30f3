package usecase

import (
	"context"
	"errors"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/domain/ports/repository"
	"donation-subscription-bot/internal/infra/logging"
	"donation-subscription-bot/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ MemberUseCase = (*memberUC)(nil)

// MemberUseCase keeps the handle to Telegram id registry.
type MemberUseCase interface {
	Remember(ctx context.Context, tgID int64, username string) (*model.Member, error)
	ResolveHandle(ctx context.Context, handle string) (*model.Member, error)
	Count(ctx context.Context) (int, error)
}

type memberUC struct {
	members repository.MemberRepository
	tm      repository.TransactionManager
	log     *zerolog.Logger
}

func NewMemberUseCase(members repository.MemberRepository, tm repository.TransactionManager, logger *zerolog.Logger) *memberUC {
	return &memberUC{
		members: members,
		tm:      tm,
		log:     logger,
	}
}

// Remember registers tgID on first sight and afterwards keeps its username
// current. An empty username never overwrites a known one.
func (u *memberUC) Remember(ctx context.Context, tgID int64, username string) (*model.Member, error) {
	defer logging.TraceDuration(u.log, "MemberUC.Remember")()

	var member *model.Member
	txOpts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		m, err := u.members.FindByTelegramID(ctx, tx, tgID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if m != nil {
			if name := model.NormalizeHandle(username); name != "" {
				m.Username = name
			}
			m.Touch()
			if err := u.members.Save(ctx, tx, m); err != nil {
				return err
			}
			member = m
			return nil
		}

		nm, err := model.NewMember("", tgID, username)
		if err != nil {
			return err
		}
		if err := u.members.Save(ctx, tx, nm); err != nil {
			return err
		}
		metrics.IncMembersRegistered()
		u.log.Info().Int64("tg_id", tgID).Msg("new member registered")
		member = nm
		return nil
	})
	return member, err
}

func (u *memberUC) ResolveHandle(ctx context.Context, handle string) (*model.Member, error) {
	defer logging.TraceDuration(u.log, "MemberUC.ResolveHandle")()
	return u.members.FindByUsername(ctx, repository.NoTX, handle)
}

func (u *memberUC) Count(ctx context.Context) (int, error) {
	return u.members.Count(ctx, repository.NoTX)
}

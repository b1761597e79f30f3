package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/infra/i18n"

	"github.com/rs/zerolog"
)

const exportFileLayout = "2006-01-02"

// Telegram caps a message at 4096 characters; the tail line needs room.
const (
	maxReplyRunes = 4000
	maxKeyRunes   = 200
)

// BotFacade composes usecases into high-level bot commands.
// Keep the facade methods returning strings so the Telegram adapter just forwards them to the chat.
type BotFacade struct {
	MemberUC    MemberUseCaseIface
	AccessUC    AccessUseCaseIface
	LedgerUC    LedgerQueryIface
	StatsUC     StatsUseCaseIface
	SyncUC      SyncUseCaseIface
	ReconcileUC ReconcileUseCaseIface
	ExportUC    ExportUseCaseIface

	tr      *i18n.Translator
	channel string
	loc     *time.Location
	log     *zerolog.Logger
}

// NewBotFacade constructs a facade from provided usecases. channel is the
// gated channel every access command acts on.
func NewBotFacade(
	memberUC MemberUseCaseIface,
	accessUC AccessUseCaseIface,
	ledgerUC LedgerQueryIface,
	statsUC StatsUseCaseIface,
	syncUC SyncUseCaseIface,
	reconcileUC ReconcileUseCaseIface,
	exportUC ExportUseCaseIface,
	tr *i18n.Translator,
	channel string,
	loc *time.Location,
	logger *zerolog.Logger,
) *BotFacade {
	if loc == nil {
		loc = time.UTC
	}
	return &BotFacade{
		MemberUC:    memberUC,
		AccessUC:    accessUC,
		LedgerUC:    ledgerUC,
		StatsUC:     statsUC,
		SyncUC:      syncUC,
		ReconcileUC: reconcileUC,
		ExportUC:    exportUC,
		tr:          tr,
		channel:     channel,
		loc:         loc,
		log:         logger,
	}
}

func (b *BotFacade) Translator() *i18n.Translator { return b.tr }

func (b *BotFacade) Channel() string { return b.channel }

// ErrorText is what a chat sees for an error the facade did not turn into a
// reply itself.
func (b *BotFacade) ErrorText(err error) string {
	if errors.Is(err, domain.ErrRunInProgress) {
		return b.tr.T("error.busy")
	}
	return b.tr.T("error.generic")
}

// Remember registers the user behind a private chat. Failures are logged only.
func (b *BotFacade) Remember(ctx context.Context, tgID int64, username string) {
	if b.MemberUC == nil {
		return
	}
	if _, err := b.MemberUC.Remember(ctx, tgID, username); err != nil {
		b.log.Warn().Err(err).Int64("tg_id", tgID).Msg("failed to remember member")
	}
}

// HandleStart registers the user and returns the welcome text.
func (b *BotFacade) HandleStart(ctx context.Context, tgID int64, username string) string {
	b.Remember(ctx, tgID, username)
	return b.tr.T("start.welcome")
}

func (b *BotFacade) HandleHelp() string {
	return b.tr.T("help")
}

// HandleStatus reports the subscription of the chat's own handle.
func (b *BotFacade) HandleStatus(ctx context.Context, tgID int64, username string) (string, error) {
	b.Remember(ctx, tgID, username)
	handle := model.NormalizeHandle(username)
	if handle == "" {
		return b.tr.T("status.no_username"), nil
	}
	st, err := b.AccessUC.Status(ctx, handle)
	if errors.Is(err, domain.ErrNotFound) {
		return b.tr.T("status.not_found", handle), nil
	}
	if err != nil {
		return "", fmt.Errorf("status of %s: %w", handle, err)
	}

	amount := b.tr.Amount(st.Entry.CumulativeAmount)
	if st.Active {
		return b.tr.T("status.active", b.date(st.Entry.SubscriptionExpiry), st.DaysLeft, amount), nil
	}
	return b.tr.T("status.expired", b.date(st.Entry.SubscriptionExpiry), amount), nil
}

// HandleJoin issues an invite link to an active subscriber.
func (b *BotFacade) HandleJoin(ctx context.Context, tgID int64, username string) (string, error) {
	b.Remember(ctx, tgID, username)
	link, err := b.AccessUC.Grant(ctx, b.channel, tgID, username)
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return b.tr.T("status.no_username"), nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoActiveSubscription):
		return b.tr.T("join.inactive"), nil
	case err != nil:
		return "", fmt.Errorf("grant access: %w", err)
	}
	return b.tr.T("join.link", link), nil
}

// HandleStats builds admin-facing formatted stats string.
func (b *BotFacade) HandleStats(ctx context.Context) (string, error) {
	st, err := b.StatsUC.Summary(ctx)
	if err != nil {
		return "", fmt.Errorf("get stats: %w", err)
	}
	return b.tr.T("admin.stats",
		st.TotalEntries, st.Active, st.Expired,
		b.tr.Amount(st.TotalAmount), b.tr.Amount(st.Average),
		st.Members,
	), nil
}

// HandleSync runs one feed sync and summarises it.
func (b *BotFacade) HandleSync(ctx context.Context) (string, error) {
	rep, err := b.SyncUC.Sync(ctx)
	if errors.Is(err, domain.ErrRunInProgress) {
		return b.tr.T("error.busy"), nil
	}
	if err != nil {
		return "", fmt.Errorf("sync: %w", err)
	}
	s := rep.Stats
	text := b.tr.T("admin.sync_done", rep.Pages, s.Inserted, s.Updated, s.Duplicates, s.Failed)
	if rep.Partial {
		text += "\n" + b.tr.T("admin.sync_partial")
	}
	return text, nil
}

// HandleCheck runs reconciliation against the gated channel.
func (b *BotFacade) HandleCheck(ctx context.Context) (string, error) {
	rep, err := b.check(ctx)
	if err != nil || rep == nil {
		return b.checkError(err)
	}
	return b.tr.T("admin.check_done", rep.Checked, rep.Removed, rep.NotMember, rep.Skipped, rep.Errors), nil
}

// HandleChannelCheck is the short summary posted back into the channel.
func (b *BotFacade) HandleChannelCheck(ctx context.Context) (string, error) {
	rep, err := b.check(ctx)
	if err != nil || rep == nil {
		return b.checkError(err)
	}
	return b.tr.T("channel.check_done", rep.Removed, rep.Errors), nil
}

func (b *BotFacade) check(ctx context.Context) (*model.ReconcileReport, error) {
	rep, err := b.ReconcileUC.Run(ctx, b.channel)
	if err != nil && rep != nil {
		// cancelled mid-run: the counts so far are still worth reporting
		b.log.Warn().Err(err).Str("run_id", rep.RunID).Msg("reconciliation interrupted")
		return rep, nil
	}
	return rep, err
}

func (b *BotFacade) checkError(err error) (string, error) {
	if errors.Is(err, domain.ErrRunInProgress) {
		return b.tr.T("error.busy"), nil
	}
	return "", fmt.Errorf("reconcile: %w", err)
}

// HandleUser lists ledger entries whose message contains query.
func (b *BotFacade) HandleUser(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return b.tr.T("admin.user_usage"), nil
	}
	entries, err := b.LedgerUC.QueryByAttribution(ctx, query)
	if err != nil {
		return "", fmt.Errorf("query ledger: %w", err)
	}
	if len(entries) == 0 {
		return b.tr.T("admin.user_none"), nil
	}
	var sb strings.Builder
	size := 0
	for i, e := range entries {
		line := b.tr.T("admin.user_entry", clip(e.AttributionKey, maxKeyRunes), b.tr.Amount(e.CumulativeAmount), b.date(e.SubscriptionExpiry))
		n := utf8.RuneCountInString(line) + 1
		if size+n > maxReplyRunes {
			sb.WriteString("\n" + b.tr.T("admin.user_more", len(entries)-i))
			break
		}
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
		size += n
	}
	return sb.String(), nil
}

// clip shortens s to at most n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// HandleExport returns the export document, its file name and a caption.
func (b *BotFacade) HandleExport(ctx context.Context) ([]byte, string, string, error) {
	data, n, err := b.ExportUC.LedgerJSON(ctx)
	if err != nil {
		return nil, "", "", fmt.Errorf("export ledger: %w", err)
	}
	name := fmt.Sprintf("subscriptions_%s.json", time.Now().In(b.loc).Format(exportFileLayout))
	return data, name, b.tr.T("admin.export_caption", n), nil
}

func (b *BotFacade) date(t *time.Time) string {
	if t == nil {
		return b.tr.T("admin.user_no_expiry")
	}
	return b.tr.Date(t.In(b.loc))
}

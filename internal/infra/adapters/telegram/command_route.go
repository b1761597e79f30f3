package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"donation-subscription-bot/internal/domain/ports/adapter"
	"donation-subscription-bot/internal/infra/logging"
	"donation-subscription-bot/internal/infra/metrics"
)

const channelCheckCommand = "check_subscriptions"

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes defines all available private chat commands and their handlers.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":  r.handleStartCommand,
		"help":   r.handleHelpCommand,
		"status": r.handleStatusCommand,

		// These handlers are wrapped in our adminOnly middleware.
		"stats":  r.adminOnly(r.handleStatsCommand),
		"sync":   r.adminOnly(r.handleSyncCommand),
		"check":  r.adminOnly(r.handleCheckCommand),
		"user":   r.adminOnly(r.handleUserCommand),
		"export": r.adminOnly(r.handleExportCommand),
		"admin":  r.adminOnly(r.handleAdminCommand),
	}
}

func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if !r.isAdmin(message.From.ID) {
			metrics.IncAdminCommand("/"+message.Command(), "unauthorized")
			return r.SendMessage(ctx, message.Chat.ID, r.facade.Translator().T("admin.forbidden"))
		}
		metrics.IncAdminCommand("/"+message.Command(), "authorized")
		return next(ctx, message)
	}
}

func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	text := r.facade.HandleStart(ctx, message.From.ID, message.From.UserName)
	if err := r.SetMenuCommands(ctx, message.Chat.ID, r.isAdmin(message.From.ID)); err != nil {
		// Log the error but don't block the user
		logging.With(ctx, r.log).Warn().Err(err).Msg("failed to set menu commands")
	}
	return r.sendJoinMenu(ctx, message.Chat.ID, text)
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.SendMessage(ctx, message.Chat.ID, r.facade.HandleHelp())
}

func (r *RealTelegramBotAdapter) handleStatusCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.facade.HandleStatus(ctx, message.From.ID, message.From.UserName)
	if err != nil {
		return r.reply(ctx, message.Chat.ID, "", err)
	}
	return r.sendJoinMenu(ctx, message.Chat.ID, text)
}

func (r *RealTelegramBotAdapter) handleAdminCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.SendMessage(ctx, message.Chat.ID, r.facade.Translator().T("admin.menu"))
}

func (r *RealTelegramBotAdapter) handleStatsCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.facade.HandleStats(ctx)
	return r.reply(ctx, message.Chat.ID, text, err)
}

func (r *RealTelegramBotAdapter) handleSyncCommand(ctx context.Context, message *tgbotapi.Message) error {
	_ = r.SendMessage(ctx, message.Chat.ID, r.facade.Translator().T("admin.sync_started"))
	text, err := r.facade.HandleSync(ctx)
	return r.reply(ctx, message.Chat.ID, text, err)
}

func (r *RealTelegramBotAdapter) handleCheckCommand(ctx context.Context, message *tgbotapi.Message) error {
	_ = r.SendMessage(ctx, message.Chat.ID, r.facade.Translator().T("admin.check_started"))
	text, err := r.facade.HandleCheck(ctx)
	return r.reply(ctx, message.Chat.ID, text, err)
}

func (r *RealTelegramBotAdapter) handleUserCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.facade.HandleUser(ctx, message.CommandArguments())
	return r.reply(ctx, message.Chat.ID, text, err)
}

func (r *RealTelegramBotAdapter) handleExportCommand(ctx context.Context, message *tgbotapi.Message) error {
	data, name, caption, err := r.facade.HandleExport(ctx)
	if err != nil {
		return r.reply(ctx, message.Chat.ID, "", err)
	}
	return r.SendDocument(ctx, message.Chat.ID, name, data, caption)
}

// handleChannelPost runs reconciliation when a channel administrator posts
// /check_subscriptions in a channel the bot administers.
func (r *RealTelegramBotAdapter) handleChannelPost(ctx context.Context, post *tgbotapi.Message) error {
	if post.Chat == nil || !post.IsCommand() || post.Command() != channelCheckCommand {
		return nil
	}
	metrics.IncTelegramCommand(channelCheckCommand)
	tr := r.facade.Translator()

	if !r.isChannelAdmin(ctx, post) {
		metrics.IncAdminCommand("/"+channelCheckCommand, "unauthorized")
		return r.SendMessage(ctx, post.Chat.ID, tr.T("admin.forbidden"))
	}
	metrics.IncAdminCommand("/"+channelCheckCommand, "authorized")

	_ = r.SendMessage(ctx, post.Chat.ID, tr.T("channel.check_started"))
	text, err := r.facade.HandleChannelCheck(ctx)
	return r.reply(ctx, post.Chat.ID, text, err)
}

// isChannelAdmin accepts posts signed by the channel itself, which only its
// administrators can publish, and posts by a user who is creator or
// administrator of the chat.
func (r *RealTelegramBotAdapter) isChannelAdmin(ctx context.Context, post *tgbotapi.Message) bool {
	if post.From == nil {
		return post.SenderChat != nil && post.SenderChat.ID == post.Chat.ID
	}
	if r.gateway == nil {
		return false
	}
	m, err := r.gateway.MemberStatus(ctx, chatRef(post.Chat), post.From.ID)
	if err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Int64("tg_id", post.From.ID).Msg("could not check channel rights")
		return false
	}
	return m.IsPrivileged()
}

func (r *RealTelegramBotAdapter) sendJoinMenu(ctx context.Context, chatID int64, text string) error {
	rows := [][]adapter.InlineButton{
		{{Text: r.facade.Translator().T("join.button"), Data: cbJoin}},
	}
	return r.SendButtons(ctx, chatID, text, rows)
}

package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cbJoin   = "join"
	cbStatus = "status"
)

type cbHandler func(ctx context.Context, chatID int64, from *tgbotapi.User) error

func (r *RealTelegramBotAdapter) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		cbJoin:   r.joinCBRoute,
		cbStatus: r.statusCBRoute,
	}
}

func (r *RealTelegramBotAdapter) joinCBRoute(ctx context.Context, chatID int64, from *tgbotapi.User) error {
	text, err := r.facade.HandleJoin(ctx, from.ID, from.UserName)
	return r.reply(ctx, chatID, text, err)
}

func (r *RealTelegramBotAdapter) statusCBRoute(ctx context.Context, chatID int64, from *tgbotapi.User) error {
	text, err := r.facade.HandleStatus(ctx, from.ID, from.UserName)
	return r.reply(ctx, chatID, text, err)
}

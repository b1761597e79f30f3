package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"donation-subscription-bot/internal/application"
	"donation-subscription-bot/internal/config"
	"donation-subscription-bot/internal/domain/ports/adapter"
	"donation-subscription-bot/internal/infra/logging"
	"donation-subscription-bot/internal/infra/metrics"
	red "donation-subscription-bot/internal/infra/redis"
	"donation-subscription-bot/internal/infra/worker"
)

const (
	commandRateLimit  = 20
	callbackRateLimit = 30
	rateLimitWindow   = time.Minute
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// BotClient is the part of *tgbotapi.BotAPI the bot uses.
type BotClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(c tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetUpdatesChan(c tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// NewBotAPI connects to Telegram with the configured token.
func NewBotAPI(cfg *config.BotConfig) (*tgbotapi.BotAPI, error) {
	if cfg == nil || cfg.Token == "" {
		return nil, errors.New("bot token is empty")
	}
	return tgbotapi.NewBotAPI(cfg.Token)
}

// RealTelegramBotAdapter polls updates and delegates to BotFacade. Updates
// are handled on the worker pool.
type RealTelegramBotAdapter struct {
	bot         BotClient
	facade      *application.BotFacade
	gateway     adapter.ChannelGateway
	rateLimiter *red.RateLimiter
	pool        *worker.Pool
	log         *zerolog.Logger

	adminIDsMap map[int64]struct{}
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewRealTelegramBotAdapter wires the adapter. rateLimiter may be nil.
func NewRealTelegramBotAdapter(
	bot BotClient,
	cfg *config.BotConfig,
	facade *application.BotFacade,
	gateway adapter.ChannelGateway,
	rateLimiter *red.RateLimiter,
	pool *worker.Pool,
	logger *zerolog.Logger,
) (*RealTelegramBotAdapter, error) {
	if bot == nil {
		return nil, errors.New("bot client is nil")
	}
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if facade == nil {
		return nil, errors.New("bot facade is nil")
	}
	if pool == nil {
		return nil, errors.New("worker pool is nil")
	}

	adminMap := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		adminMap[id] = struct{}{}
	}
	compLog := logger.With().Str("component", "TelegramBot").Logger()

	return &RealTelegramBotAdapter{
		bot:         bot,
		facade:      facade,
		gateway:     gateway,
		rateLimiter: rateLimiter,
		pool:        pool,
		log:         &compLog,
		adminIDsMap: adminMap,
		stop:        make(chan struct{}),
	}, nil
}

// StartPolling receives updates until ctx is cancelled or StopPolling is
// called.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query", "channel_post", "chat_member"}
	updates := r.bot.GetUpdatesChan(u)
	defer r.bot.StopReceivingUpdates()

	r.log.Info().Msg("telegram polling started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			r.log.Info().Msg("telegram polling stopped")
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			err := r.pool.Submit(ctx, func(ctx context.Context) error {
				return r.handleUpdate(ctx, up)
			})
			if err != nil && ctx.Err() == nil {
				r.log.Warn().Err(err).Int("update_id", up.UpdateID).Msg("dropped telegram update")
			}
		}
	}
}

// StopPolling ends StartPolling. It is safe to call more than once and from
// any goroutine, before or after polling started.
func (r *RealTelegramBotAdapter) StopPolling() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *RealTelegramBotAdapter) isAdmin(tgID int64) bool {
	_, ok := r.adminIDsMap[tgID]
	return ok
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	ctx = logging.WithTraceID(ctx, uuid.NewString())
	switch {
	case update.CallbackQuery != nil:
		return r.handleQuery(ctx, update.CallbackQuery)
	case update.ChannelPost != nil:
		return r.handleChannelPost(ctx, update.ChannelPost)
	case update.ChatMember != nil:
		return r.handleChatMember(ctx, update.ChatMember)
	case update.Message != nil:
		return r.handleMessage(ctx, update.Message)
	}
	return nil
}

func (r *RealTelegramBotAdapter) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	if message.From == nil || message.Chat == nil || !message.Chat.IsPrivate() {
		return nil
	}
	ctx = logging.WithTgID(ctx, message.From.ID)

	command := "message"
	if message.IsCommand() {
		command = message.Command()
	}
	metrics.IncTelegramCommand(command)
	if !r.allow(ctx, message.From.ID, command, commandRateLimit) {
		return r.SendMessage(ctx, message.Chat.ID, r.facade.Translator().T("error.rate_limited"))
	}

	if !message.IsCommand() {
		return r.SendMessage(ctx, message.Chat.ID, r.facade.Translator().T("unknown_command"))
	}
	handler, ok := r.commandRoutes()[command]
	if !ok {
		return r.SendMessage(ctx, message.Chat.ID, r.facade.Translator().T("unknown_command"))
	}
	return handler(ctx, message)
}

// handleChatMember keeps the handle registry current for users joining or
// changing status in the channel.
func (r *RealTelegramBotAdapter) handleChatMember(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) error {
	u := upd.NewChatMember.User
	if u == nil || u.IsBot {
		return nil
	}
	r.facade.Remember(ctx, u.ID, u.UserName)
	return nil
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}

	// Stop telegram spinner when we return
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	chatID := query.From.ID
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	}
	ctx = logging.WithTgID(ctx, query.From.ID)

	data := strings.TrimSpace(query.Data)
	if !r.allow(ctx, query.From.ID, "cb:"+data, callbackRateLimit) {
		return r.SendMessage(ctx, chatID, r.facade.Translator().T("error.rate_limited"))
	}

	if fn, ok := r.cbRoutes()[data]; ok {
		return fn(ctx, chatID, query.From)
	}
	return errors.New("unknown callback data")
}

func (r *RealTelegramBotAdapter) allow(ctx context.Context, tgID int64, command string, limit int) bool {
	if r.rateLimiter == nil {
		return true
	}
	allowed, err := r.rateLimiter.Allow(ctx, red.UserCommandKey(tgID, command), limit, rateLimitWindow)
	if err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if !allowed {
		metrics.IncRateLimitTriggered()
	}
	return allowed
}

// reply sends text, or the facade's error text when err is set.
func (r *RealTelegramBotAdapter) reply(ctx context.Context, chatID int64, text string, err error) error {
	if err != nil {
		logging.With(ctx, r.log).Error().Err(err).Msg("command failed")
		text = r.facade.ErrorText(err)
	}
	return r.SendMessage(ctx, chatID, text)
}

func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(tgID, text)
	msg.DisableWebPagePreview = true
	_, err := r.bot.Send(msg)
	return err
}

// SendButtons sends a message with inline buttons using tgbotapi.
// - If btn.URL is set, the button opens a link
// - Else if btn.Data is set, the button sends callback data
// - Else a safe fallback uses btn.Text as callback data
func (r *RealTelegramBotAdapter) SendButtons(ctx context.Context, telegramID int64, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		kr := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, kr)
	}

	msg := tgbotapi.NewMessage(telegramID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	_, err := r.bot.Send(msg)
	return err
}

func (r *RealTelegramBotAdapter) SendDocument(ctx context.Context, telegramID int64, filename string, data []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(telegramID, tgbotapi.FileBytes{Name: filename, Bytes: data})
	doc.Caption = caption
	_, err := r.bot.Send(doc)
	return err
}

// SetMenuCommands publishes the command list for one chat; admins also see
// the admin commands.
func (r *RealTelegramBotAdapter) SetMenuCommands(ctx context.Context, chatID int64, isAdmin bool) error {
	tr := r.facade.Translator()
	cmds := []tgbotapi.BotCommand{
		{Command: "start", Description: tr.T("menu.start")},
		{Command: "status", Description: tr.T("menu.status")},
		{Command: "help", Description: tr.T("menu.help")},
	}
	if isAdmin {
		cmds = append(cmds,
			tgbotapi.BotCommand{Command: "stats", Description: tr.T("menu.stats")},
			tgbotapi.BotCommand{Command: "sync", Description: tr.T("menu.sync")},
			tgbotapi.BotCommand{Command: "check", Description: tr.T("menu.check")},
			tgbotapi.BotCommand{Command: "user", Description: tr.T("menu.user")},
			tgbotapi.BotCommand{Command: "export", Description: tr.T("menu.export")},
			tgbotapi.BotCommand{Command: "admin", Description: tr.T("menu.admin")},
		)
	}
	_, err := r.bot.Request(tgbotapi.NewSetMyCommandsWithScope(tgbotapi.NewBotCommandScopeChat(chatID), cmds...))
	return err
}

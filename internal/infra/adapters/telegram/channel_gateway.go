package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/domain/ports/adapter"
)

var _ adapter.ChannelGateway = (*ChannelGateway)(nil)

// HandleResolver maps a handle to a Telegram user seen by the bot. The Bot API
// cannot look users up by username.
type HandleResolver interface {
	ResolveHandle(ctx context.Context, handle string) (*model.Member, error)
}

// ChannelGateway controls access to the gated channel through the Bot API.
// The bot must be an administrator of the channel.
type ChannelGateway struct {
	bot     BotClient
	members HandleResolver
	log     *zerolog.Logger
}

func NewChannelGateway(bot BotClient, members HandleResolver, logger *zerolog.Logger) *ChannelGateway {
	compLog := logger.With().Str("component", "ChannelGateway").Logger()
	return &ChannelGateway{bot: bot, members: members, log: &compLog}
}

func (g *ChannelGateway) LookupMember(ctx context.Context, channel, handle string) (*model.ChannelMember, error) {
	m, err := g.members.ResolveHandle(ctx, handle)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: @%s is unknown to the bot", domain.ErrMemberNotFound, handle)
	}
	if err != nil {
		return nil, err
	}

	cm, err := g.MemberStatus(ctx, channel, m.TelegramID)
	if err != nil {
		return nil, err
	}
	switch cm.Status {
	case "left", "kicked":
		return nil, fmt.Errorf("%w: @%s status %s", domain.ErrMemberNotFound, handle, cm.Status)
	}
	if cm.Username == "" {
		cm.Username = m.Username
	}
	return cm, nil
}

func (g *ChannelGateway) MemberStatus(ctx context.Context, channel string, userID int64) (*model.ChannelMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chatID, username := parseChannel(channel)
	cm, err := g.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID:             chatID,
			SuperGroupUsername: username,
			UserID:             userID,
		},
	})
	if err != nil {
		return nil, classify(err)
	}
	out := &model.ChannelMember{UserID: userID, Status: cm.Status}
	if cm.User != nil {
		out.Username = cm.User.UserName
	}
	return out, nil
}

// Revoke bans the user so the removal sticks until Unban.
func (g *ChannelGateway) Revoke(ctx context.Context, channel string, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := g.bot.Request(tgbotapi.BanChatMemberConfig{ChatMemberConfig: memberConfig(channel, userID)})
	if err != nil {
		return classify(err)
	}
	g.log.Info().Int64("user_id", userID).Str("channel", channel).Msg("member removed from channel")
	return nil
}

func (g *ChannelGateway) Unban(ctx context.Context, channel string, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := g.bot.Request(tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: memberConfig(channel, userID),
		OnlyIfBanned:     true,
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (g *ChannelGateway) CreateInviteLink(ctx context.Context, channel, name string, expireAt time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	chatID, username := parseChannel(channel)
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: chatID, SuperGroupUsername: username},
		Name:        name,
		MemberLimit: 1,
	}
	if !expireAt.IsZero() {
		cfg.ExpireDate = int(expireAt.Unix())
	}
	resp, err := g.bot.Request(cfg)
	if err != nil {
		return "", classify(err)
	}

	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decode invite link: %w", err)
	}
	if link.InviteLink == "" {
		return "", errors.New("telegram returned an empty invite link")
	}
	return link.InviteLink, nil
}

// parseChannel accepts a numeric chat id or an @username.
func parseChannel(channel string) (int64, string) {
	channel = strings.TrimSpace(channel)
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		return id, ""
	}
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	return 0, channel
}

func memberConfig(channel string, userID int64) tgbotapi.ChatMemberConfig {
	chatID, username := parseChannel(channel)
	return tgbotapi.ChatMemberConfig{ChatID: chatID, SuperGroupUsername: username, UserID: userID}
}

func chatRef(chat *tgbotapi.Chat) string {
	return strconv.FormatInt(chat.ID, 10)
}

// classify maps Bot API error descriptions onto domain errors.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user not found"),
		strings.Contains(msg, "participant_id_invalid"),
		strings.Contains(msg, "user_not_participant"):
		return fmt.Errorf("%w: %v", domain.ErrMemberNotFound, err)
	case strings.Contains(msg, "not enough rights"),
		strings.Contains(msg, "chat_admin_required"),
		strings.Contains(msg, "member list is inaccessible"),
		strings.Contains(msg, "need administrator rights"),
		strings.Contains(msg, "bot is not a member"):
		return fmt.Errorf("%w: %v", domain.ErrInsufficientRights, err)
	}
	return err
}

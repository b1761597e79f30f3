package model

import (
	"strings"
	"time"

	"donation-subscription-bot/internal/domain"

	"github.com/google/uuid"
)

// Member is a Telegram user the bot has seen, either in a private chat or
// joining the channel. The Bot API addresses members by numeric id only, so
// this is how a handle from a donation message is turned into a user.
type Member struct {
	ID           string
	TelegramID   int64
	Username     string
	RegisteredAt time.Time
	LastActiveAt time.Time
}

func NewMember(id string, tgID int64, username string) (*Member, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Member{
		ID:           id,
		TelegramID:   tgID,
		Username:     NormalizeHandle(username),
		RegisteredAt: now,
		LastActiveAt: now,
	}, nil
}

func (m *Member) Touch() { m.LastActiveAt = time.Now() }

// NormalizeHandle strips a leading "@" and surrounding spaces.
func NormalizeHandle(h string) string {
	return strings.TrimPrefix(strings.TrimSpace(h), "@")
}

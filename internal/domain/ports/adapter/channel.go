package adapter

import (
	"context"
	"time"

	"donation-subscription-bot/internal/domain/model"
)

// ChannelGateway is what the engine needs from the messaging platform to
// control access to the gated channel. channel is a numeric chat id or an
// @channel username.
type ChannelGateway interface {
	// LookupMember resolves handle to a current member of channel. It returns
	// domain.ErrMemberNotFound when the user is unknown, left or was already
	// removed, and domain.ErrInsufficientRights when the bot may not look.
	LookupMember(ctx context.Context, channel, handle string) (*model.ChannelMember, error)
	MemberStatus(ctx context.Context, channel string, userID int64) (*model.ChannelMember, error)
	Revoke(ctx context.Context, channel string, userID int64) error
	Unban(ctx context.Context, channel string, userID int64) error
	// CreateInviteLink creates a single-use link.
	CreateInviteLink(ctx context.Context, channel, name string, expireAt time.Time) (string, error)
}

//go:build !integration

package telegram

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"donation-subscription-bot/internal/application"
	"donation-subscription-bot/internal/config"
	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/infra/i18n"
	"donation-subscription-bot/internal/infra/worker"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// fakeBot records every Chattable sent to Telegram.
type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable

	RequestFunc       func(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMemberFunc func(c tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	memberCalls       []tgbotapi.GetChatMemberConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, c)
	fn := f.RequestFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(c)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetChatMember(c tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	f.mu.Lock()
	f.memberCalls = append(f.memberCalls, c)
	fn := f.GetChatMemberFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(c)
	}
	return tgbotapi.ChatMember{Status: "member"}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeBot) StopReceivingUpdates() {}

// texts returns the text of every plain message sent so far.
func (f *fakeBot) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

type fakeResolver struct {
	members map[string]*model.Member
}

func (f *fakeResolver) ResolveHandle(_ context.Context, handle string) (*model.Member, error) {
	if m, ok := f.members[model.NormalizeHandle(handle)]; ok {
		return m, nil
	}
	return nil, domain.ErrNotFound
}

type fakeMemberUC struct {
	mu         sync.Mutex
	remembered map[int64]string
}

func (f *fakeMemberUC) Remember(_ context.Context, tgID int64, username string) (*model.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remembered == nil {
		f.remembered = map[int64]string{}
	}
	f.remembered[tgID] = username
	return &model.Member{TelegramID: tgID, Username: username}, nil
}

type fakeReconcileUC struct {
	calls int
	rep   *model.ReconcileReport
}

func (f *fakeReconcileUC) Run(context.Context, string) (*model.ReconcileReport, error) {
	f.calls++
	return f.rep, nil
}

type fakeLedgerQuery struct {
	queries []string
}

func (f *fakeLedgerQuery) QueryByAttribution(_ context.Context, q string) ([]*model.LedgerEntry, error) {
	f.queries = append(f.queries, q)
	return nil, nil
}

type harness struct {
	bot       *fakeBot
	members   *fakeMemberUC
	reconcile *fakeReconcileUC
	ledger    *fakeLedgerQuery
	adapter   *RealTelegramBotAdapter
}

const adminID int64 = 100

func newHarness(t *testing.T) *harness {
	t.Helper()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		t.Fatalf("failed to load translator: %v", err)
	}
	h := &harness{
		bot:       &fakeBot{},
		members:   &fakeMemberUC{},
		reconcile: &fakeReconcileUC{rep: &model.ReconcileReport{Checked: 3, Removed: 2, Errors: 1}},
		ledger:    &fakeLedgerQuery{},
	}
	facade := application.NewBotFacade(h.members, nil, h.ledger, nil, nil, h.reconcile, nil,
		tr, "@private_channel", time.UTC, newTestLogger())
	gw := NewChannelGateway(h.bot, &fakeResolver{}, newTestLogger())
	pool := worker.NewPool(1, newTestLogger())

	h.adapter, err = NewRealTelegramBotAdapter(h.bot, &config.BotConfig{AdminIDs: []int64{adminID}},
		facade, gw, nil, pool, newTestLogger())
	if err != nil {
		t.Fatalf("failed to build adapter: %v", err)
	}
	return h
}

// command builds a message whose text starts with a bot command entity.
func command(chat *tgbotapi.Chat, from *tgbotapi.User, text string) *tgbotapi.Message {
	n := len(text)
	for i, r := range text {
		if r == ' ' {
			n = i
			break
		}
	}
	return &tgbotapi.Message{
		MessageID: 1,
		From:      from,
		Chat:      chat,
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}},
	}
}

func privateChat(id int64) *tgbotapi.Chat {
	return &tgbotapi.Chat{ID: id, Type: "private"}
}

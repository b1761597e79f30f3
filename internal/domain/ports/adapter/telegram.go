package adapter

import "context"

// InlineButton is one keyboard button. URL wins over Data when both are set.
type InlineButton struct {
	Text string
	Data string
	URL  string
}

// MessageSender delivers plain text to a private chat.
type MessageSender interface {
	SendMessage(ctx context.Context, telegramID int64, text string) error
}

// TelegramBotAdapter is the outbound side of the bot: text, inline keyboards
// and file uploads such as the ledger export.
type TelegramBotAdapter interface {
	MessageSender
	SendButtons(ctx context.Context, telegramID int64, text string, rows [][]InlineButton) error
	SendDocument(ctx context.Context, telegramID int64, filename string, data []byte, caption string) error
}

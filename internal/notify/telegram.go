// Package notify delivers out-of-band lifecycle notifications. The only
// backend today is a Telegram chat; a nil *Telegram is a valid no-op
// notifier so callers never need to branch on configuration.
package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
)

// Telegram sends plain-text messages to a fixed chat.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
}

// NewTelegram creates the notifier. Returns (nil, nil) when token or chat id
// is unset, which callers treat as notifications disabled.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

// Notify sends one message. Safe on a nil receiver.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if t == nil {
		return nil
	}
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

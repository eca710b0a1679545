// Package notify broadcasts status events. Delivery is strictly best-effort:
// failures are logged and never affect control flow.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
)

// Broadcaster sends fire-and-forget notifications.
type Broadcaster interface {
	// Broadcast sends a message. It never returns an error; failures are
	// swallowed after logging.
	Broadcast(ctx context.Context, format string, args ...interface{})
}

// Nop discards every notification.
type Nop struct{}

// Broadcast implements Broadcaster.
func (Nop) Broadcast(ctx context.Context, format string, args ...interface{}) {}

// Telegram broadcasts to a single chat.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
	log    *slog.Logger
}

// NewTelegram creates a telegram broadcaster.
func NewTelegram(token string, chatID int64, log *slog.Logger) (*Telegram, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID, log: log}, nil
}

// Broadcast implements Broadcaster.
func (t *Telegram) Broadcast(ctx context.Context, format string, args ...interface{}) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	_, err := t.bot.SendMessage(sendCtx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   fmt.Sprintf(format, args...),
	})
	if err != nil {
		t.log.Debug("notification delivery failed", "error", err)
	}
}

// internal/tron/notify.go
//
// Telegram notifications through the tenant's own bot.
//
// Context
// -------
// Payment confirmations must come from the bot the user paid through, so
// the notifier is keyed by bot token rather than bound to one bot.  A
// `tgbotapi.BotAPI` is built lazily per token and kept in an LRU; building
// one costs a getMe round trip.
package tron

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yanizio/tronpoll/internal/cache"
)

// Notifier delivers a text message from the bot identified by token.
type Notifier interface {
	Notify(ctx context.Context, botToken string, chatID int64, text string) error
}

// TelegramNotifier sends through the Bot API.
type TelegramNotifier struct {
	endpoint string
	client   *http.Client
	bots     *cache.LRU[string, *tgbotapi.BotAPI]
}

// NewTelegramNotifier returns a notifier for the given API endpoint
// format; empty selects tgbotapi.APIEndpoint.
func NewTelegramNotifier(endpoint string) *TelegramNotifier {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &TelegramNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		bots:     cache.New[string, *tgbotapi.BotAPI](256),
	}
}

// Notify sends text as HTML.  The Bot API client has no context support;
// ctx is only checked before sending.
func (n *TelegramNotifier) Notify(ctx context.Context, botToken string, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := n.bot(botToken)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}

func (n *TelegramNotifier) bot(token string) (*tgbotapi.BotAPI, error) {
	if b, ok := n.bots.Get(token); ok {
		return b, nil
	}
	b, err := tgbotapi.NewBotAPIWithClient(token, n.endpoint, n.client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	n.bots.Add(token, b)
	return b, nil
}

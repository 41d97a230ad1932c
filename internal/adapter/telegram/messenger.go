// Package telegram delivers notifications through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-telegram/bot"

	"github.com/neomorfeo/rollcall/internal/domain"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Compile-time check: Messenger implements domain.Messenger.
var _ domain.Messenger = (*Messenger)(nil)

// Messenger sends plain text messages to Telegram chats. The recipient handle
// is the chat id.
type Messenger struct {
	bot   *bot.Bot
	token string
}

// New creates a messenger for the bot identified by token. No request is
// made until the first Send.
func New(baseURL, token string) (*Messenger, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	b, err := bot.New(token,
		bot.WithServerURL(strings.TrimRight(baseURL, "/")),
		bot.WithHTTPClient(time.Minute, &http.Client{Timeout: 10 * time.Second}),
		bot.WithSkipGetMe(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", redact(err, token))
	}

	return &Messenger{bot: b, token: token}, nil
}

// Send calls sendMessage. A request the Bot API answers with an error is
// returned as a *domain.DeliveryError; transport failures are wrapped.
func (m *Messenger) Send(ctx context.Context, handle, text string) error {
	_, err := m.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: handle,
		Text:   text,
	})
	if err == nil {
		return nil
	}

	// The request URL embeds the bot token; never surface it.
	err = redact(err, m.token)

	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("sending message: %w", err)
	}
	return &domain.DeliveryError{Handle: handle, Description: err.Error()}
}

type redactedError struct {
	msg   string
	cause error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.cause }

func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<token>"), cause: err}
}

// LogMessenger writes messages to the log instead of delivering them. It is
// used when no bot token is configured.
type LogMessenger struct{}

// Send logs the message.
func (LogMessenger) Send(ctx context.Context, handle, text string) error {
	slog.InfoContext(ctx, "notification (not delivered, no bot token)", "handle", handle, "text", text)
	return nil
}

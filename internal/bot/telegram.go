package bot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxInFlight bounds the number of updates handled at once in polling mode
const maxInFlight = 8

// BotAPI is the subset of *tgbotapi.BotAPI the transport uses
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
}

// TelegramTransport delivers Telegram updates to a Router and sends the replies
type TelegramTransport struct {
	api         BotAPI
	router      *Router
	logger      *zap.Logger
	pollTimeout time.Duration
	webhookURL  string
}

// NewTelegramTransport creates a transport. An empty webhookURL selects
// long polling.
func NewTelegramTransport(api BotAPI, router *Router, logger *zap.Logger, pollTimeout time.Duration, webhookURL string) *TelegramTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelegramTransport{
		api:         api,
		router:      router,
		logger:      logger.With(zap.String("component", "telegram")),
		pollTimeout: pollTimeout,
		webhookURL:  webhookURL,
	}
}

// Run receives updates until ctx is cancelled. In webhook mode it only
// registers the webhook; updates then arrive through HandleWebhook.
func (t *TelegramTransport) Run(ctx context.Context) error {
	if t.webhookURL != "" {
		return t.runWebhook(ctx)
	}
	return t.runPolling(ctx)
}

func (t *TelegramTransport) runWebhook(ctx context.Context) error {
	if _, err := t.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	wh, err := tgbotapi.NewWebhook(t.webhookURL)
	if err != nil {
		return fmt.Errorf("failed to build webhook config: %w", err)
	}
	if _, err := t.api.Request(wh); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}

	t.logger.Info("webhook set", zap.String("url", t.webhookURL))

	<-ctx.Done()
	return nil
}

func (t *TelegramTransport) runPolling(ctx context.Context) error {
	// getUpdates is refused while a webhook is registered
	if _, err := t.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(t.pollTimeout.Seconds())
	updates := t.api.GetUpdatesChan(u)

	t.logger.Info("polling for updates", zap.Duration("timeout", t.pollTimeout))

	var g errgroup.Group
	g.SetLimit(maxInFlight)

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return g.Wait()
		case update, ok := <-updates:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				t.Dispatch(ctx, update)
				return nil
			})
		}
	}
}

// HandleWebhook parses one webhook delivery and dispatches it
func (t *TelegramTransport) HandleWebhook(ctx context.Context, r *http.Request) error {
	update, err := t.api.HandleUpdate(r)
	if err != nil {
		return fmt.Errorf("failed to parse update: %w", err)
	}
	t.Dispatch(ctx, *update)
	return nil
}

// Dispatch routes one update and sends the reply, if any
func (t *TelegramTransport) Dispatch(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	cmd, ok := CommandFromMessage(msg)
	if !ok {
		return
	}

	reply := t.router.Handle(ctx, cmd)
	if reply == "" {
		return
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, reply)
	out.ReplyToMessageID = msg.MessageID
	if _, err := t.api.Send(out); err != nil {
		t.logger.Error("failed to send reply",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Error(err),
		)
	}
}

// CommandFromMessage converts a Telegram message into a Command. Messages
// without text, sender or chat are skipped.
func CommandFromMessage(msg *tgbotapi.Message) (Command, bool) {
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return Command{}, false
	}

	if msg.IsCommand() {
		return Command{
			Name:     msg.Command(),
			Args:     strings.Fields(msg.CommandArguments()),
			CallerID: msg.From.ID,
		}, true
	}

	if strings.TrimSpace(msg.Text) == "" {
		return Command{}, false
	}

	return Command{CallerID: msg.From.ID}, true
}

package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBotAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests []tgbotapi.Chattable
	sendErr  error
	updates  chan tgbotapi.Update
	stopped  bool
}

func newFakeBotAPI() *fakeBotAPI {
	return &fakeBotAPI{updates: make(chan tgbotapi.Update, 16)}
}

func (f *fakeBotAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.sendErr
}

func (f *fakeBotAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBotAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeBotAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeBotAPI) HandleUpdate(r *http.Request) (*tgbotapi.Update, error) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		return nil, err
	}
	return &update, nil
}

func (f *fakeBotAPI) Sent() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

func (f *fakeBotAPI) Requests() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.requests...)
}

func commandMessage(id int, from int64, text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		MessageID: id,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: from},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		name := strings.SplitN(text, " ", 2)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}}
	}
	return msg
}

func TestCommandFromMessage(t *testing.T) {
	cmd, ok := CommandFromMessage(commandMessage(1, userID, "/register 2002"))
	require.True(t, ok)
	assert.Equal(t, Command{Name: "register", Args: []string{"2002"}, CallerID: userID}, cmd)

	cmd, ok = CommandFromMessage(commandMessage(1, userID, "/check@ea_license_bot  2002  "))
	require.True(t, ok)
	assert.Equal(t, "check", cmd.Name)
	assert.Equal(t, []string{"2002"}, cmd.Args)

	cmd, ok = CommandFromMessage(commandMessage(1, userID, "/register"))
	require.True(t, ok)
	assert.Empty(t, cmd.Args)

	cmd, ok = CommandFromMessage(commandMessage(1, userID, "hello"))
	require.True(t, ok)
	assert.Equal(t, Command{CallerID: userID}, cmd)

	_, ok = CommandFromMessage(commandMessage(1, userID, "   "))
	assert.False(t, ok)

	_, ok = CommandFromMessage(nil)
	assert.False(t, ok)

	_, ok = CommandFromMessage(&tgbotapi.Message{Text: "/start", Chat: &tgbotapi.Chat{ID: 1}})
	assert.False(t, ok)
}

func TestDispatch_RepliesToMessage(t *testing.T) {
	f := newRouterFixture(t)
	api := newFakeBotAPI()
	transport := NewTelegramTransport(api, f.router, nil, time.Second, "")

	transport.Dispatch(context.Background(), tgbotapi.Update{Message: commandMessage(7, userID, "/register 2002")})

	sent := api.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, userID, sent[0].ChatID)
	assert.Equal(t, 7, sent[0].ReplyToMessageID)
	assert.Contains(t, sent[0].Text, "LC-2002-20261017120000")
}

func TestDispatch_UnknownCommandSendsNothing(t *testing.T) {
	f := newRouterFixture(t)
	api := newFakeBotAPI()
	transport := NewTelegramTransport(api, f.router, nil, time.Second, "")

	transport.Dispatch(context.Background(), tgbotapi.Update{Message: commandMessage(1, userID, "/help")})
	transport.Dispatch(context.Background(), tgbotapi.Update{})

	assert.Empty(t, api.Sent())
}

func TestDispatch_SendFailureIsSwallowed(t *testing.T) {
	f := newRouterFixture(t)
	api := newFakeBotAPI()
	api.sendErr = errors.New("network down")
	transport := NewTelegramTransport(api, f.router, nil, time.Second, "")

	assert.NotPanics(t, func() {
		transport.Dispatch(context.Background(), tgbotapi.Update{Message: commandMessage(1, userID, "/start")})
	})
	assert.Len(t, api.Sent(), 1)
}

func TestHandleWebhook(t *testing.T) {
	f := newRouterFixture(t)
	api := newFakeBotAPI()
	transport := NewTelegramTransport(api, f.router, nil, time.Second, "https://example.com/webhook")

	body, err := json.Marshal(tgbotapi.Update{UpdateID: 1, Message: commandMessage(3, userID, "/check 2002")})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(body)))
	require.NoError(t, transport.HandleWebhook(context.Background(), req))

	sent := api.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, ReplyNotFound, sent[0].Text)

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{"))
	assert.Error(t, transport.HandleWebhook(context.Background(), req))
}

func TestRun_WebhookRegistersEndpoint(t *testing.T) {
	f := newRouterFixture(t)
	api := newFakeBotAPI()
	transport := NewTelegramTransport(api, f.router, nil, time.Second, "https://example.com/webhook/s3cret")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, transport.Run(ctx))

	requests := api.Requests()
	require.Len(t, requests, 2)

	del, ok := requests[0].(tgbotapi.DeleteWebhookConfig)
	require.True(t, ok)
	assert.True(t, del.DropPendingUpdates)

	wh, ok := requests[1].(tgbotapi.WebhookConfig)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/webhook/s3cret", wh.URL.String())
}

func TestRun_PollingDispatchesUpdates(t *testing.T) {
	f := newRouterFixture(t)
	api := newFakeBotAPI()
	transport := NewTelegramTransport(api, f.router, nil, time.Second, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- transport.Run(ctx) }()

	api.updates <- tgbotapi.Update{UpdateID: 1, Message: commandMessage(1, userID, "/start")}
	api.updates <- tgbotapi.Update{UpdateID: 2, Message: commandMessage(2, userID, "/register 1001")}

	assert.Eventually(t, func() bool { return len(api.Sent()) == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("polling loop did not stop")
	}

	api.mu.Lock()
	assert.True(t, api.stopped)
	api.mu.Unlock()
}

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adamscao/ealicense/internal/auth"
)

// UpdateHandler consumes one Telegram webhook delivery.
// *bot.TelegramTransport satisfies it.
type UpdateHandler interface {
	HandleWebhook(ctx context.Context, r *http.Request) error
}

// WebhookHandler receives Telegram updates in webhook mode
type WebhookHandler struct {
	updates    UpdateHandler
	secretHash string
	logger     *zap.Logger
}

// NewWebhookHandler creates a new webhook handler. Only requests whose
// :secret path segment equals secret are accepted; an empty secret rejects
// everything.
func NewWebhookHandler(updates UpdateHandler, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &WebhookHandler{
		updates: updates,
		logger:  logger,
	}
	if secret != "" {
		h.secretHash = auth.HashToken(secret)
	}
	return h
}

// Receive handles one update
// POST /webhook/:secret
func (h *WebhookHandler) Receive(c *gin.Context) {
	if h.secretHash == "" || !auth.VerifyToken(c.Param("secret"), h.secretHash) {
		h.logger.Warn("rejected webhook request with bad secret", zap.String("client_ip", GetClientIP(c)))
		c.String(http.StatusForbidden, "forbidden")
		return
	}

	if c.ContentType() != "application/json" {
		c.String(http.StatusForbidden, "forbidden")
		return
	}

	if err := h.updates.HandleWebhook(c.Request.Context(), c.Request); err != nil {
		h.logger.Warn("rejected webhook update", zap.Error(err))
		RespondError(c, http.StatusBadRequest, "invalid_update", "Invalid update body")
		return
	}

	c.String(http.StatusOK, "ok")
}

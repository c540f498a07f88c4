package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adamscao/ealicense/internal/license"
)

// Verifier checks an (account, key) pair. *license.Verifier satisfies it.
type Verifier interface {
	Verify(ctx context.Context, accountID, licenseKey string) (license.Result, error)
}

// VerificationObserver is notified of every verdict
type VerificationObserver interface {
	ObserveVerification(result string)
}

// VerifyHandler answers license checks from the EA
type VerifyHandler struct {
	verifier Verifier
	observer VerificationObserver
	logger   *zap.Logger
}

// NewVerifyHandler creates a new verify handler. observer may be nil.
func NewVerifyHandler(verifier Verifier, observer VerificationObserver, logger *zap.Logger) *VerifyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerifyHandler{
		verifier: verifier,
		observer: observer,
		logger:   logger,
	}
}

// Verify reports whether the license is currently valid.
// GET /verify?account_id=...&license_key=...
//
// The body is always the plain text "valid" or "invalid". mt5_account is
// accepted in place of account_id.
func (h *VerifyHandler) Verify(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		accountID = c.Query("mt5_account")
	}
	licenseKey := c.Query("license_key")

	result, err := h.verifier.Verify(c.Request.Context(), accountID, licenseKey)
	if err != nil {
		h.logger.Error("verification unavailable",
			zap.String("account_id", accountID),
			zap.String("client_ip", GetClientIP(c)),
			zap.Error(err),
		)
	}

	if h.observer != nil {
		h.observer.ObserveVerification(result.String())
	}

	c.String(result.HTTPStatus(), result.Body())
}

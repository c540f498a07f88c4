package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adamscao/ealicense/internal/models"
)

// LicenseLister returns every stored license. *license.Service satisfies it.
type LicenseLister interface {
	List(ctx context.Context) ([]*models.License, error)
}

// AdminHandler handles administrative operations
type AdminHandler struct {
	licenses LicenseLister
	logger   *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(licenses LicenseLister, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		licenses: licenses,
		logger:   logger,
	}
}

// LicenseResponse is the JSON form of one license
type LicenseResponse struct {
	AccountID  string `json:"account_id"`
	OwnerID    int64  `json:"owner_id"`
	LicenseKey string `json:"license_key"`
	ExpiresOn  string `json:"expires_on"`
	Status     string `json:"status"`
}

// ListLicensesResponse represents the license listing
type ListLicensesResponse struct {
	Licenses []LicenseResponse `json:"licenses"`
	Count    int               `json:"count"`
}

// ListLicenses returns every license
// GET /v1/admin/licenses
func (h *AdminHandler) ListLicenses(c *gin.Context) {
	licenses, err := h.licenses.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list licenses", zap.Error(err))
		RespondError(c, http.StatusServiceUnavailable, "storage_unavailable", "Failed to list licenses")
		return
	}

	resp := ListLicensesResponse{
		Licenses: make([]LicenseResponse, 0, len(licenses)),
		Count:    len(licenses),
	}
	for _, l := range licenses {
		resp.Licenses = append(resp.Licenses, LicenseResponse{
			AccountID:  l.AccountID,
			OwnerID:    l.OwnerID,
			LicenseKey: l.LicenseKey,
			ExpiresOn:  l.ExpiresOnString(),
			Status:     string(l.Status),
		})
	}

	RespondSuccess(c, resp)
}

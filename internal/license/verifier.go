package license

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/adamscao/ealicense/internal/db/repository"
)

// Result is the verdict for one (account, key) pair.
type Result int

const (
	ResultValid Result = iota
	ResultMissingInput
	ResultInactive
	ResultNotFound
	ResultUnavailable
)

// Valid reports whether the verdict allows the EA to run. Only ResultValid does.
func (r Result) Valid() bool {
	return r == ResultValid
}

// HTTPStatus maps the verdict to the status code of GET /verify
func (r Result) HTTPStatus() int {
	switch r {
	case ResultValid:
		return http.StatusOK
	case ResultMissingInput:
		return http.StatusBadRequest
	case ResultInactive:
		return http.StatusForbidden
	case ResultNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

// Body is the plain-text response body expected by the EA
func (r Result) Body() string {
	if r.Valid() {
		return "valid"
	}
	return "invalid"
}

func (r Result) String() string {
	switch r {
	case ResultValid:
		return "valid"
	case ResultMissingInput:
		return "missing_input"
	case ResultInactive:
		return "inactive"
	case ResultNotFound:
		return "not_found"
	case ResultUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Verifier answers whether an (account, key) pair currently denotes a valid
// license. It performs at most one store read and never writes.
type Verifier struct {
	store  Store
	now    Clock
	logger *zap.Logger
}

// NewVerifier creates a verifier reading from store
func NewVerifier(store Store, opts ...Option) *Verifier {
	o := buildOptions(opts)
	return &Verifier{
		store:  store,
		now:    o.now,
		logger: o.logger.With(zap.String("component", "verifier")),
	}
}

// Verify checks the pair. On a storage failure it returns ResultUnavailable
// together with the *StorageError; the verdict is never valid in that case.
func (v *Verifier) Verify(ctx context.Context, accountID, licenseKey string) (Result, error) {
	accountID = strings.TrimSpace(accountID)
	licenseKey = strings.TrimSpace(licenseKey)
	if accountID == "" || licenseKey == "" {
		return ResultMissingInput, nil
	}

	l, err := v.store.GetByAccountAndKey(ctx, accountID, licenseKey)
	if errors.Is(err, repository.ErrNotFound) {
		return ResultNotFound, nil
	}
	if err != nil {
		return ResultUnavailable, storageError("verify", err)
	}

	// Both columns must match whatever the Store implementation does.
	if l.AccountID != accountID || l.LicenseKey != licenseKey {
		return ResultNotFound, nil
	}

	if !l.ValidAt(v.now()) {
		return ResultInactive, nil
	}

	return ResultValid, nil
}

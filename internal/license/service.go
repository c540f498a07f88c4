// Package license implements the license lifecycle (issue, describe, revoke)
// and the read-only verification used by the Expert Advisor.
package license

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adamscao/ealicense/internal/db/repository"
	"github.com/adamscao/ealicense/internal/models"
)

const (
	// ValidityDays is the length of every issuance window.
	ValidityDays = 30

	keyPrefix    = "LC"
	keyTimestamp = "20060102150405"
)

// Store is the persistence contract the lifecycle and verification need.
// *repository.LicenseRepository satisfies it.
type Store interface {
	Upsert(ctx context.Context, l *models.License) error
	Get(ctx context.Context, accountID string) (*models.License, error)
	GetByAccountAndKey(ctx context.Context, accountID, licenseKey string) (*models.License, error)
	SetStatus(ctx context.Context, accountID string, status models.LicenseStatus) (bool, error)
	List(ctx context.Context) ([]*models.License, error)
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// Service owns key generation and expiration policy.
type Service struct {
	// issueMu makes the read of the stored key and the upsert one step
	issueMu sync.Mutex

	store   Store
	adminID int64
	now     Clock
	logger  *zap.Logger
}

// Option configures a Service or Verifier
type Option func(*options)

type options struct {
	now    Clock
	logger *zap.Logger
}

// WithClock overrides time.Now
func WithClock(now Clock) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewService creates the lifecycle service. adminID is the only caller
// allowed to use ListFor.
func NewService(store Store, adminID int64, opts ...Option) *Service {
	o := buildOptions(opts)
	return &Service{
		store:   store,
		adminID: adminID,
		now:     o.now,
		logger:  o.logger.With(zap.String("component", "license")),
	}
}

// GenerateKey derives the license key for an account issued at t.
func GenerateKey(accountID string, t time.Time) string {
	return fmt.Sprintf("%s-%s-%s", keyPrefix, accountID, t.Format(keyTimestamp))
}

// keyTime extracts the issuance timestamp from a generated key
func keyTime(key string, loc *time.Location) (time.Time, bool) {
	i := strings.LastIndex(key, "-")
	if i < 0 {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(keyTimestamp, key[i+1:], loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Issue creates or replaces the license for accountID. Any previously issued
// key for the account stops verifying immediately.
func (s *Service) Issue(ctx context.Context, ownerID int64, accountID string) (*models.License, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrValidation)
	}

	s.issueMu.Lock()
	defer s.issueMu.Unlock()

	issuedAt := s.now()

	// Keys must never repeat for an account, so issuance is never earlier
	// than one second after the timestamp of the stored key.
	existing, err := s.store.Get(ctx, accountID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storageError("issue", err)
	}
	if existing != nil {
		if prev, ok := keyTime(existing.LicenseKey, issuedAt.Location()); ok &&
			!issuedAt.Truncate(time.Second).After(prev) {
			issuedAt = prev.Add(time.Second)
		}
	}
	key := GenerateKey(accountID, issuedAt)

	l := &models.License{
		AccountID:  accountID,
		OwnerID:    ownerID,
		LicenseKey: key,
		ExpiresOn:  models.CivilDate(issuedAt.AddDate(0, 0, ValidityDays)),
		Status:     models.StatusActive,
	}

	if err := s.store.Upsert(ctx, l); err != nil {
		return nil, storageError("issue", err)
	}

	s.logger.Info("license issued",
		zap.String("account_id", accountID),
		zap.Int64("owner_id", ownerID),
		zap.String("expires_on", l.ExpiresOnString()),
	)

	return l, nil
}

// Description is the outcome of Describe. Valid is false both for expired
// and for revoked licenses; callers cannot tell the two apart.
type Description struct {
	Found   bool
	Valid   bool
	License *models.License
}

// Describe reports the state of the license for accountID
func (s *Service) Describe(ctx context.Context, accountID string) (Description, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Description{}, fmt.Errorf("%w: account id is required", ErrValidation)
	}

	l, err := s.store.Get(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return Description{}, nil
	}
	if err != nil {
		return Description{}, storageError("describe", err)
	}

	return Description{
		Found:   true,
		Valid:   l.ValidAt(s.now()),
		License: l,
	}, nil
}

// Revoke marks the license for accountID inactive. Revoking an unknown or
// already inactive account succeeds.
func (s *Service) Revoke(ctx context.Context, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("%w: account id is required", ErrValidation)
	}

	affected, err := s.store.SetStatus(ctx, accountID, models.StatusInactive)
	if err != nil {
		return storageError("revoke", err)
	}

	s.logger.Info("license revoked",
		zap.String("account_id", accountID),
		zap.Bool("existed", affected),
	)

	return nil
}

// List returns every license record
func (s *Service) List(ctx context.Context) ([]*models.License, error) {
	licenses, err := s.store.List(ctx)
	if err != nil {
		return nil, storageError("list", err)
	}
	return licenses, nil
}

// ListFor returns every license record if callerID is the administrator.
// The store is not touched for any other caller.
func (s *Service) ListFor(ctx context.Context, callerID int64) ([]*models.License, error) {
	if s.adminID == 0 || callerID != s.adminID {
		s.logger.Warn("unauthorized listing attempt", zap.Int64("caller_id", callerID))
		return nil, ErrNotAuthorized
	}
	return s.List(ctx)
}

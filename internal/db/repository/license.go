package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/adamscao/ealicense/internal/models"
)

// ErrNotFound is returned when no license row matches a lookup
var ErrNotFound = errors.New("license not found")

// LicenseRepository handles license data access
type LicenseRepository struct {
	db *sql.DB
}

// NewLicenseRepository creates a new license repository
func NewLicenseRepository(db *sql.DB) *LicenseRepository {
	return &LicenseRepository{db: db}
}

// Upsert inserts the license or fully replaces the row for its account
func (r *LicenseRepository) Upsert(ctx context.Context, l *models.License) error {
	query := `
		INSERT INTO licenses (account_id, owner_id, license_key, expires_on, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			owner_id    = excluded.owner_id,
			license_key = excluded.license_key,
			expires_on  = excluded.expires_on,
			status      = excluded.status
	`

	_, err := r.db.ExecContext(ctx, query,
		l.AccountID,
		l.OwnerID,
		l.LicenseKey,
		l.ExpiresOnString(),
		string(l.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert license: %w", err)
	}

	return nil
}

// Get retrieves the license for an account
func (r *LicenseRepository) Get(ctx context.Context, accountID string) (*models.License, error) {
	query := `
		SELECT account_id, owner_id, license_key, expires_on, status
		FROM licenses
		WHERE account_id = ?
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, accountID))
}

// GetByAccountAndKey retrieves the license only if both account and key match
func (r *LicenseRepository) GetByAccountAndKey(ctx context.Context, accountID, licenseKey string) (*models.License, error) {
	query := `
		SELECT account_id, owner_id, license_key, expires_on, status
		FROM licenses
		WHERE account_id = ? AND license_key = ?
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, accountID, licenseKey))
}

// SetStatus updates the status of an account's license. The returned bool
// reports whether a row was affected; a missing account is not an error.
func (r *LicenseRepository) SetStatus(ctx context.Context, accountID string, status models.LicenseStatus) (bool, error) {
	query := `UPDATE licenses SET status = ? WHERE account_id = ?`

	result, err := r.db.ExecContext(ctx, query, string(status), accountID)
	if err != nil {
		return false, fmt.Errorf("failed to update license status: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count > 0, nil
}

// List lists all licenses. Callers must not rely on the order.
func (r *LicenseRepository) List(ctx context.Context) ([]*models.License, error) {
	query := `
		SELECT account_id, owner_id, license_key, expires_on, status
		FROM licenses
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*models.License

	for rows.Next() {
		l, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate licenses: %w", err)
	}

	return licenses, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *LicenseRepository) scanOne(row rowScanner) (*models.License, error) {
	l := &models.License{}
	var expiresOn, status string

	err := row.Scan(
		&l.AccountID,
		&l.OwnerID,
		&l.LicenseKey,
		&expiresOn,
		&status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan license: %w", err)
	}

	l.ExpiresOn, err = models.ParseDate(expiresOn)
	if err != nil {
		return nil, fmt.Errorf("corrupt license row for %s: %w", l.AccountID, err)
	}

	l.Status = models.LicenseStatus(status)
	if !l.Status.Valid() {
		return nil, fmt.Errorf("corrupt license row for %s: unknown status %q", l.AccountID, status)
	}

	return l, nil
}

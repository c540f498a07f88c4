package models

import (
	"fmt"
	"time"
)

// DateLayout is the persisted and displayed form of ExpiresOn
const DateLayout = "2006-01-02"

// LicenseStatus is the administrative state of a license
type LicenseStatus string

const (
	StatusActive   LicenseStatus = "active"
	StatusInactive LicenseStatus = "inactive"
)

// Valid reports whether s is a known status
func (s LicenseStatus) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// License represents the license bound to one trading account
type License struct {
	AccountID  string        `json:"account_id"`
	OwnerID    int64         `json:"owner_id"`
	LicenseKey string        `json:"license_key"`
	ExpiresOn  time.Time     `json:"expires_on"` // civil date, midnight UTC
	Status     LicenseStatus `json:"status"`
}

// ExpiresAt returns the instant the license stops being valid in loc.
func (l *License) ExpiresAt(loc *time.Location) time.Time {
	y, m, d := l.ExpiresOn.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// ValidAt reports whether the license is active and not yet expired at now.
func (l *License) ValidAt(now time.Time) bool {
	return l.Status == StatusActive && now.Before(l.ExpiresAt(now.Location()))
}

// ExpiresOnString formats ExpiresOn as YYYY-MM-DD
func (l *License) ExpiresOnString() string {
	return l.ExpiresOn.Format(DateLayout)
}

// CivilDate truncates t to its calendar date, expressed as midnight UTC.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date as stored in the licenses table
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

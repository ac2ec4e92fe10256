package security

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Lockout policy applied by the verification path.
const (
	MaxFailedAttempts = 5
	LockoutDuration   = 30 * time.Minute
)

// SecuritySettings holds a user's two-factor state: the encrypted TOTP
// secret, the encrypted backup code set, and the failed-attempt bookkeeping.
// One row per user; removed only when the user disables two-factor.
type SecuritySettings struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	TOTPSecret     string     `gorm:"column:totp_secret;type:text" json:"-"`
	Enabled        bool       `gorm:"default:false" json:"enabled"`
	EnabledAt      *time.Time `json:"enabled_at,omitempty"`
	BackupCodes    CodeList   `gorm:"type:json" json:"-"`
	FailedAttempts int        `gorm:"default:0" json:"failed_attempts"`
	LockedUntil    *time.Time `gorm:"index" json:"locked_until,omitempty"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsLocked checks if verification attempts are currently blocked
func (s *SecuritySettings) IsLocked(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// RegisterFailure increments the failed-attempt counter and starts a lockout
// window once the threshold is reached
func (s *SecuritySettings) RegisterFailure(now time.Time) {
	s.FailedAttempts++
	if s.FailedAttempts >= MaxFailedAttempts {
		lockedUntil := now.Add(LockoutDuration)
		s.LockedUntil = &lockedUntil
	}
}

// RegisterSuccess resets the failure bookkeeping after a valid code
func (s *SecuritySettings) RegisterSuccess(now time.Time) {
	s.FailedAttempts = 0
	s.LockedUntil = nil
	s.LastUsedAt = &now
}

// RemainingAttempts returns how many failures are left before lockout
func (s *SecuritySettings) RemainingAttempts() int {
	remaining := MaxFailedAttempts - s.FailedAttempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CodeList is a custom type to handle JSON serialization of the encrypted
// backup code set for PostgreSQL
type CodeList []string

// Scan implements the Scanner interface for database deserialization
func (cl *CodeList) Scan(value interface{}) error {
	if value == nil {
		*cl = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, cl)
	case string:
		return json.Unmarshal([]byte(v), cl)
	default:
		return errors.New("unsupported type for CodeList")
	}
}

// Value implements the driver Valuer interface for database serialization
func (cl CodeList) Value() (driver.Value, error) {
	if cl == nil {
		return nil, nil
	}
	return json.Marshal(cl)
}

// RemoveAt returns a copy of the list with the code at index i removed
func (cl CodeList) RemoveAt(i int) CodeList {
	if i < 0 || i >= len(cl) {
		return cl
	}
	out := make(CodeList, 0, len(cl)-1)
	out = append(out, cl[:i]...)
	out = append(out, cl[i+1:]...)
	return out
}

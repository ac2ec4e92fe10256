package twofactor

import (
	"errors"
	"fmt"
	"time"

	"echoshop/logger"
	sessionModel "echoshop/models/session"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionLifetime is the fixed window from creation to expiry of a
// challenge session.
const SessionLifetime = 10 * time.Minute

// SessionManager creates, looks up and consumes challenge sessions.
type SessionManager struct {
	DB *gorm.DB
}

func NewSessionManager(db *gorm.DB) *SessionManager {
	return &SessionManager{DB: db}
}

// Create inserts a new unverified session with a generated unique token. A
// store failure here is a hard failure of the enclosing operation; callers
// must not silently bypass the gate.
func (m *SessionManager) Create(userID uint, purpose sessionModel.Purpose, actionType *sessionModel.ActionType, actionContext *string) (*sessionModel.ChallengeSession, error) {
	now := time.Now()
	s := &sessionModel.ChallengeSession{
		UserID:        userID,
		SessionToken:  uuid.NewString(),
		Purpose:       purpose,
		ActionType:    actionType,
		ActionContext: actionContext,
		Verified:      false,
		ExpiresAt:     now.Add(SessionLifetime),
	}

	if err := m.DB.Create(s).Error; err != nil {
		return nil, fmt.Errorf("failed to create challenge session: %w", err)
	}

	return s, nil
}

// GetByToken looks a session up by its token. Returns nil without error when
// no session exists.
func (m *SessionManager) GetByToken(token string) (*sessionModel.ChallengeSession, error) {
	var s sessionModel.ChallengeSession
	err := m.DB.Where("session_token = ?", token).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find challenge session: %w", err)
	}
	return &s, nil
}

// MarkVerified flips a session to verified. The conditional UPDATE keeps the
// token single use even under concurrent verification attempts: only one
// caller sees a row affected.
func (m *SessionManager) MarkVerified(token string) (bool, error) {
	res := m.DB.Model(&sessionModel.ChallengeSession{}).
		Where("session_token = ? AND verified = ? AND expires_at > ?", token, false, time.Now()).
		Update("verified", true)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark session verified: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// PurgeExpired deletes all sessions past their expiry. Best effort cleanup.
func (m *SessionManager) PurgeExpired() error {
	return m.DB.Where("expires_at <= ?", time.Now()).Delete(&sessionModel.ChallengeSession{}).Error
}

// SweepLoop runs PurgeExpired on a fixed interval. Intended to run as a
// goroutine started once at process start.
func (m *SessionManager) SweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := m.PurgeExpired(); err != nil {
			logger.Error("Failed to purge expired challenge sessions", err)
		}
	}
}

package audit

import (
	"echoshop/logger"
	auditModel "echoshop/models/audit"
	sessionModel "echoshop/models/session"

	"gorm.io/gorm"
)

// Recorder appends two-factor audit events. The trail is append-only and is
// written on every verification attempt, success or failure, even when the
// primary response is an error. A storage failure is logged and swallowed so
// the caller's response is never blocked on the audit write.
type Recorder struct {
	DB *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{DB: db}
}

// RecordVerification appends one verification attempt to the trail.
func (r *Recorder) RecordVerification(userID uint, purpose sessionModel.Purpose, actionType *sessionModel.ActionType, success bool, detail, ip string) {
	event := auditModel.TwoFactorEvent{
		UserID:    userID,
		Purpose:   purpose.String(),
		Success:   success,
		Detail:    detail,
		IPAddress: ip,
	}
	if actionType != nil {
		at := actionType.String()
		event.ActionType = &at
	}

	if err := r.DB.Create(&event).Error; err != nil {
		logger.Error("Failed to record two-factor audit event", err)
	}
}

// EventsForUser returns the newest events for a user, for the admin surface.
func (r *Recorder) EventsForUser(userID uint, limit int) ([]auditModel.TwoFactorEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var events []auditModel.TwoFactorEvent
	err := r.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

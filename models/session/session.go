package session

import (
	"time"
)

// Purpose represents what a challenge session was issued for
type Purpose string

const (
	PurposeLogin          Purpose = "login"
	PurposeCriticalAction Purpose = "critical_action"
)

func (p Purpose) String() string {
	return string(p)
}

func (p Purpose) IsValid() bool {
	switch p {
	case PurposeLogin, PurposeCriticalAction:
		return true
	default:
		return false
	}
}

// ActionType represents the critical action a session was issued for
type ActionType string

const (
	ActionDeleteProduct ActionType = "delete_product"
	ActionDeleteAccount ActionType = "delete_account"
	ActionChangeRole    ActionType = "change_role"
	ActionPayoutRequest ActionType = "payout_request"
	ActionBulkDelete    ActionType = "bulk_delete"
	ActionModifyPricing ActionType = "modify_pricing"
	ActionExportData    ActionType = "export_data"
	ActionAdminAction   ActionType = "admin_action"
)

func (a ActionType) String() string {
	return string(a)
}

func (a ActionType) IsValid() bool {
	switch a {
	case ActionDeleteProduct, ActionDeleteAccount, ActionChangeRole,
		ActionPayoutRequest, ActionBulkDelete, ActionModifyPricing,
		ActionExportData, ActionAdminAction:
		return true
	default:
		return false
	}
}

// GetAllActionTypes returns all valid critical action types
func GetAllActionTypes() []ActionType {
	return []ActionType{
		ActionDeleteProduct,
		ActionDeleteAccount,
		ActionChangeRole,
		ActionPayoutRequest,
		ActionBulkDelete,
		ActionModifyPricing,
		ActionExportData,
		ActionAdminAction,
	}
}

// ChallengeSession represents a short-lived two-factor verification challenge.
// A session is created unverified, flips to verified on exactly one successful
// code check before expiry, and is never mutated after that.
type ChallengeSession struct {
	ID            uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint        `gorm:"not null;index" json:"user_id"`
	SessionToken  string      `gorm:"type:varchar(64);not null;uniqueIndex" json:"session_token"`
	Purpose       Purpose     `gorm:"type:varchar(30);not null" json:"purpose"`
	ActionType    *ActionType `gorm:"type:varchar(50)" json:"action_type,omitempty"`
	ActionContext *string     `gorm:"type:text" json:"action_context,omitempty"`
	Verified      bool        `gorm:"default:false" json:"verified"`
	ExpiresAt     time.Time   `gorm:"not null;index" json:"expires_at"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// IsExpired checks if the session has expired. The expiry instant itself
// counts as expired.
func (s *ChallengeSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// MatchesAction checks if the session was issued for the given user, purpose
// and action type tuple. A session may only be consumed for the exact tuple
// it was issued for.
func (s *ChallengeSession) MatchesAction(userID uint, purpose Purpose, actionType ActionType) bool {
	if s.UserID != userID || s.Purpose != purpose {
		return false
	}
	if purpose == PurposeCriticalAction {
		return s.ActionType != nil && *s.ActionType == actionType
	}
	return true
}

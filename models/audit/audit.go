package audit

import (
	"time"
)

// TwoFactorEvent is an append-only audit record of a verification attempt.
// Rows are never updated or deleted.
type TwoFactorEvent struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	Purpose    string    `gorm:"type:varchar(30);not null" json:"purpose"`
	ActionType *string   `gorm:"type:varchar(50)" json:"action_type,omitempty"`
	Success    bool      `gorm:"not null" json:"success"`
	Detail     string    `gorm:"type:varchar(255)" json:"detail"`
	IPAddress  string    `gorm:"type:varchar(64)" json:"ip_address"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

package twofactor

import (
	"echoshop/constants"
	sessionModel "echoshop/models/session"
)

// IsRequired decides whether two-factor verification must gate the request.
// It is pure and side-effect free; every component consults it before
// deciding to create a challenge.
//
// Login only demands a second factor from owner and admin accounts. Critical
// actions demand it from every role, including roles we do not recognize: a
// mis-provisioned account must not slip past the strongest gate.
func IsRequired(role string, purpose sessionModel.Purpose, actionType *sessionModel.ActionType) bool {
	switch purpose {
	case sessionModel.PurposeLogin:
		return role == constants.RoleOwner || role == constants.RoleAdmin
	case sessionModel.PurposeCriticalAction:
		return true
	default:
		return false
	}
}

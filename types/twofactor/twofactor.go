package twofactor

// RequireRequest asks whether two-factor verification must gate an operation
// and, when it must, requests a challenge session.
type RequireRequest struct {
	Purpose       string `json:"purpose" validate:"required,oneof=login critical_action"`
	ActionType    string `json:"actionType,omitempty" validate:"omitempty,max=50"`
	ActionContext string `json:"actionContext,omitempty" validate:"omitempty,max=2048"`
	UserID        *uint  `json:"userId,omitempty"`
}

// RequireResponse reports the policy decision and, when verification is
// required and set up, the issued challenge session.
type RequireResponse struct {
	Required     bool   `json:"required"`
	Enabled      bool   `json:"enabled,omitempty"`
	SessionToken string `json:"sessionToken,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}

// VerifyRequest submits a one-time code or a backup code against a challenge
// session token. At least one of Code and BackupCode must be present.
type VerifyRequest struct {
	SessionToken string `json:"sessionToken" validate:"required,max=64"`
	Code         string `json:"code,omitempty" validate:"omitempty,len=6,numeric"`
	BackupCode   string `json:"backupCode,omitempty" validate:"omitempty,len=8,numeric"`
}

// VerifyResponse confirms a successful verification. The caller re-presents
// the session token to the protected operation.
type VerifyResponse struct {
	Success      bool   `json:"success"`
	UserID       uint   `json:"userId"`
	SessionToken string `json:"sessionToken"`
}

// StatusResponse reports whether two-factor is enabled for the caller.
type StatusResponse struct {
	Enabled   bool   `json:"enabled"`
	EnabledAt string `json:"enabledAt,omitempty"`
}

// SetupResponse carries the fresh secret for enrollment. The secret and
// backup codes are shown exactly once.
type SetupResponse struct {
	Secret      string   `json:"secret"`
	QRCode      string   `json:"qrCode"`
	OTPAuthURL  string   `json:"otpauthUrl"`
	BackupCodes []string `json:"backupCodes"`
	Message     string   `json:"message"`
}

// VerifySetupRequest confirms enrollment with a first valid code.
type VerifySetupRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// DisableRequest clears all stored two-factor state after a final code check.
type DisableRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// BackupCodesResponse carries a regenerated backup code set.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backupCodes"`
	Message     string   `json:"message"`
}

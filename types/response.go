package types

type ApiResponse struct {
	Message string      `json:"message"`
	Status  int         `json:"status"`
	Token   string      `json:"token,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// TwoFactorErrorResponse is the structured failure shape for two-factor
// endpoints. Requires2FA tells the caller to branch into the verification
// flow; RemainingAttempts is present on failed code checks.
type TwoFactorErrorResponse struct {
	Error             string `json:"error"`
	Requires2FA       bool   `json:"requires2FA,omitempty"`
	RemainingAttempts *int   `json:"remainingAttempts,omitempty"`
}

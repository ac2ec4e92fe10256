package auth

// RegisterRequest creates a marketplace account. Role is restricted to the
// self-service roles; owner/admin accounts are provisioned out of band.
type RegisterRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=64,alphanum"`
	Email       string `json:"email" validate:"required,email,max=255"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	DisplayName string `json:"display_name" validate:"omitempty,max=255"`
	Role        string `json:"role" validate:"omitempty,oneof=user vendor"`
}

// LoginRequest authenticates with credentials. When the first attempt comes
// back requiring two-factor, the caller retries with the verified challenge
// session token attached.
type LoginRequest struct {
	Username          string `json:"username" validate:"required,max=64"`
	Password          string `json:"password" validate:"required,max=128"`
	TwoFASessionToken string `json:"twofaSessionToken,omitempty" validate:"omitempty,max=64"`
}

// LoginResponse carries the signed JWT and the caller's profile summary.
type LoginResponse struct {
	Token    string `json:"token"`
	UserID   uint   `json:"user_id"`
	Uuid     string `json:"uuid"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// TwoFactorChallengeResponse is returned instead of a token when login
// requires a second factor.
type TwoFactorChallengeResponse struct {
	Requires2FA  bool   `json:"requires2FA"`
	Enabled      bool   `json:"enabled"`
	SessionToken string `json:"sessionToken,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
	Message      string `json:"message"`
}

package twofactor

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the verification path. Controllers map these onto HTTP
// statuses; the messages are safe to show to callers.
var (
	ErrSessionNotFound = errors.New("invalid or expired verification session")
	ErrSessionUsed     = errors.New("verification session has already been used")
	ErrSessionExpired  = errors.New("verification session has expired")
	ErrPurposeMismatch = errors.New("verification session was issued for a different purpose")
	ErrNotEnabled      = errors.New("two-factor authentication is not set up for this account")
)

// LockedError reports an active lockout window. The message never reveals
// whether the submitted code would have been correct.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	wait := time.Until(e.Until).Round(time.Minute)
	if wait < time.Minute {
		wait = time.Minute
	}
	return fmt.Sprintf("too many failed attempts, try again in %s", wait)
}

// InvalidCodeError reports a failed code check and how many attempts remain
// before lockout.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	if e.Remaining <= 0 {
		return "invalid verification code, account is now locked"
	}
	return fmt.Sprintf("invalid verification code, %d attempts remaining", e.Remaining)
}

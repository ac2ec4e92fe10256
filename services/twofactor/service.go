package twofactor

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"time"

	"echoshop/logger"
	securityModel "echoshop/models/security"
	sessionModel "echoshop/models/session"
	userModel "echoshop/models/user"
	auditService "echoshop/services/audit"
	"echoshop/utils"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"
)

// BackupCodeCount is the number of backup codes generated per setup.
const BackupCodeCount = 8

// Service orchestrates two-factor setup, the verification path and the
// protected-action checks. Constructed once at process start and passed to
// controllers explicitly.
type Service struct {
	DB        *gorm.DB
	Sessions  *SessionManager
	Encryptor *utils.Encryptor
	Audit     *auditService.Recorder
	Mailer    Mailer
	Issuer    string
}

// Mailer sends best-effort security notices. May be nil.
type Mailer interface {
	Send(to, subject, body string) error
}

func NewService(db *gorm.DB, encryptor *utils.Encryptor, recorder *auditService.Recorder, mailer Mailer, issuer string) *Service {
	return &Service{
		DB:        db,
		Sessions:  NewSessionManager(db),
		Encryptor: encryptor,
		Audit:     recorder,
		Mailer:    mailer,
		Issuer:    issuer,
	}
}

// SetupResult carries the enrollment material returned to the user exactly
// once.
type SetupResult struct {
	Secret      string
	OTPAuthURL  string
	QRCode      string
	BackupCodes []string
}

// RequireResult reports the policy decision and the issued challenge, if any.
type RequireResult struct {
	Required     bool
	Enabled      bool
	SessionToken string
	ExpiresAt    time.Time
}

// VerifyResult confirms a successful verification.
type VerifyResult struct {
	UserID       uint
	SessionToken string
}

// loadSettings fetches a user's two-factor row. Returns nil without error
// when the user has never set 2FA up.
func (s *Service) loadSettings(userID uint) (*securityModel.SecuritySettings, error) {
	var settings securityModel.SecuritySettings
	err := s.DB.Where("user_id = ?", userID).First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load security settings: %w", err)
	}
	return &settings, nil
}

// IsEnabled reports whether the user has a confirmed two-factor setup.
func (s *Service) IsEnabled(userID uint) (bool, error) {
	settings, err := s.loadSettings(userID)
	if err != nil {
		return false, err
	}
	return settings != nil && settings.Enabled && settings.TOTPSecret != "", nil
}

// Status returns the enabled flag and when two-factor was enabled.
func (s *Service) Status(userID uint) (bool, *time.Time, error) {
	settings, err := s.loadSettings(userID)
	if err != nil {
		return false, nil, err
	}
	if settings == nil || !settings.Enabled {
		return false, nil, nil
	}
	return true, settings.EnabledAt, nil
}

// Setup generates a fresh TOTP secret plus backup codes, stores both
// encrypted, and returns the provisioning material. The setup stays disabled
// until VerifySetup confirms the user scanned the secret.
func (s *Service) Setup(userID uint, accountName string) (*SetupResult, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: accountName,
		Period:      30,
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	encryptedSecret, err := s.Encryptor.Encrypt(key.Secret())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt TOTP secret: %w", err)
	}

	plainCodes, encryptedCodes, err := s.generateBackupCodes()
	if err != nil {
		return nil, err
	}

	settings, err := s.loadSettings(userID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = &securityModel.SecuritySettings{UserID: userID}
	}
	settings.TOTPSecret = encryptedSecret
	settings.BackupCodes = encryptedCodes
	settings.Enabled = false
	settings.EnabledAt = nil
	settings.FailedAttempts = 0
	settings.LockedUntil = nil

	if err := s.DB.Save(settings).Error; err != nil {
		return nil, fmt.Errorf("failed to store security settings: %w", err)
	}

	qrCode, err := renderQRCode(key)
	if err != nil {
		// The otpauth URL still lets the user enroll manually
		logger.Error("Failed to render provisioning QR code", err)
		qrCode = ""
	}

	return &SetupResult{
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		QRCode:      qrCode,
		BackupCodes: plainCodes,
	}, nil
}

// VerifySetup confirms enrollment with a first valid code and enables
// two-factor for the user.
func (s *Service) VerifySetup(userID uint, code string) error {
	settings, err := s.loadSettings(userID)
	if err != nil {
		return err
	}
	if settings == nil || settings.TOTPSecret == "" {
		return ErrNotEnabled
	}

	secret, err := s.Encryptor.Decrypt(settings.TOTPSecret)
	if err != nil {
		return fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}

	if !totp.Validate(code, secret) {
		return &InvalidCodeError{Remaining: settings.RemainingAttempts()}
	}

	now := time.Now()
	settings.Enabled = true
	settings.EnabledAt = &now
	settings.FailedAttempts = 0
	settings.LockedUntil = nil

	if err := s.DB.Save(settings).Error; err != nil {
		return fmt.Errorf("failed to enable two-factor: %w", err)
	}
	return nil
}

// Disable clears all stored two-factor state after a final valid code check.
func (s *Service) Disable(userID uint, code string) error {
	settings, err := s.loadSettings(userID)
	if err != nil {
		return err
	}
	if settings == nil || settings.TOTPSecret == "" {
		return ErrNotEnabled
	}

	secret, err := s.Encryptor.Decrypt(settings.TOTPSecret)
	if err != nil {
		return fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}
	if !totp.Validate(code, secret) {
		return &InvalidCodeError{Remaining: settings.RemainingAttempts()}
	}

	if err := s.DB.Delete(settings).Error; err != nil {
		return fmt.Errorf("failed to clear two-factor state: %w", err)
	}
	return nil
}

// RegenerateBackupCodes replaces the stored backup code set with a fresh one.
func (s *Service) RegenerateBackupCodes(userID uint) ([]string, error) {
	settings, err := s.loadSettings(userID)
	if err != nil {
		return nil, err
	}
	if settings == nil || !settings.Enabled {
		return nil, ErrNotEnabled
	}

	plainCodes, encryptedCodes, err := s.generateBackupCodes()
	if err != nil {
		return nil, err
	}

	settings.BackupCodes = encryptedCodes
	if err := s.DB.Save(settings).Error; err != nil {
		return nil, fmt.Errorf("failed to store backup codes: %w", err)
	}
	return plainCodes, nil
}

// Require evaluates policy for the caller and, when verification is needed,
// issues a challenge session. A store failure while issuing is a hard
// failure; this path never fails open.
func (s *Service) Require(userID uint, role string, purpose sessionModel.Purpose, actionType *sessionModel.ActionType, actionContext *string) (*RequireResult, error) {
	if !IsRequired(role, purpose, actionType) {
		return &RequireResult{Required: false}, nil
	}

	enabled, err := s.IsEnabled(userID)
	if err != nil {
		return nil, err
	}
	if !enabled {
		// Verification is required but the account has no confirmed setup.
		// Surfaced distinctly so the UI can direct the user to enroll.
		return &RequireResult{Required: true, Enabled: false}, nil
	}

	sess, err := s.Sessions.Create(userID, purpose, actionType, actionContext)
	if err != nil {
		return nil, err
	}

	return &RequireResult{
		Required:     true,
		Enabled:      true,
		SessionToken: sess.SessionToken,
		ExpiresAt:    sess.ExpiresAt,
	}, nil
}

// Verify runs the ordered verification procedure for a submitted TOTP or
// backup code against a challenge session token. Every attempt, rejected or
// accepted, lands in the audit trail.
func (s *Service) Verify(token, code, backupCode string, purpose sessionModel.Purpose, ip string) (*VerifyResult, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	if code == "" && backupCode == "" {
		return nil, &InvalidCodeError{Remaining: securityModel.MaxFailedAttempts}
	}

	sess, err := s.Sessions.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}

	now := time.Now()
	if sess.Verified {
		return nil, ErrSessionUsed
	}
	if sess.IsExpired(now) {
		return nil, ErrSessionExpired
	}
	if sess.Purpose != purpose {
		return nil, ErrPurposeMismatch
	}

	settings, err := s.loadSettings(sess.UserID)
	if err != nil {
		return nil, err
	}
	if settings == nil || settings.TOTPSecret == "" {
		return nil, ErrNotEnabled
	}

	// An active lockout rejects the attempt before the code is examined and
	// does not consume an attempt.
	if settings.IsLocked(now) {
		s.Audit.RecordVerification(sess.UserID, sess.Purpose, sess.ActionType, false, "rejected during lockout", ip)
		return nil, &LockedError{Until: *settings.LockedUntil}
	}

	valid := false

	if backupCode != "" {
		for i, encrypted := range settings.BackupCodes {
			plain, decErr := s.Encryptor.Decrypt(encrypted)
			if decErr != nil {
				logger.Error("Failed to decrypt stored backup code", decErr)
				continue
			}
			if plain == backupCode {
				// Single use: the matched code leaves the set immediately
				settings.BackupCodes = settings.BackupCodes.RemoveAt(i)
				valid = true
				break
			}
		}
	}

	if !valid && code != "" {
		secret, decErr := s.Encryptor.Decrypt(settings.TOTPSecret)
		if decErr != nil {
			return nil, fmt.Errorf("failed to decrypt TOTP secret: %w", decErr)
		}
		valid = totp.Validate(code, secret)
	}

	if !valid {
		settings.RegisterFailure(now)
		if err := s.DB.Save(settings).Error; err != nil {
			return nil, fmt.Errorf("failed to update failed-attempt counter: %w", err)
		}
		s.Audit.RecordVerification(sess.UserID, sess.Purpose, sess.ActionType, false, "invalid code", ip)
		if settings.IsLocked(now) {
			s.notifyLockout(sess.UserID, settings)
		}
		return nil, &InvalidCodeError{Remaining: settings.RemainingAttempts()}
	}

	settings.RegisterSuccess(now)
	if err := s.DB.Save(settings).Error; err != nil {
		return nil, fmt.Errorf("failed to update security settings: %w", err)
	}

	ok, err := s.Sessions.MarkVerified(token)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with a concurrent attempt, or the session expired
		// between the checks above and the conditional update
		return nil, ErrSessionUsed
	}

	s.Audit.RecordVerification(sess.UserID, sess.Purpose, sess.ActionType, true, "verified", ip)

	return &VerifyResult{UserID: sess.UserID, SessionToken: token}, nil
}

// ValidateActionSession re-validates a session token presented for a
// protected critical action. The client claim is never trusted: the token
// must exist, be verified, be unexpired, belong to the caller, and match the
// action it gates.
func (s *Service) ValidateActionSession(token string, userID uint, action sessionModel.ActionType) (bool, error) {
	if token == "" {
		return false, nil
	}
	sess, err := s.Sessions.GetByToken(token)
	if err != nil {
		return false, err
	}
	if sess == nil || !sess.Verified || sess.IsExpired(time.Now()) {
		return false, nil
	}
	return sess.MatchesAction(userID, sessionModel.PurposeCriticalAction, action), nil
}

// ValidateLoginSession re-validates a session token presented to finish a
// two-factor login.
func (s *Service) ValidateLoginSession(token string, userID uint) (bool, error) {
	if token == "" {
		return false, nil
	}
	sess, err := s.Sessions.GetByToken(token)
	if err != nil {
		return false, err
	}
	if sess == nil || !sess.Verified || sess.IsExpired(time.Now()) {
		return false, nil
	}
	return sess.UserID == userID && sess.Purpose == sessionModel.PurposeLogin, nil
}

func (s *Service) generateBackupCodes() ([]string, securityModel.CodeList, error) {
	plain := make([]string, 0, BackupCodeCount)
	encrypted := make(securityModel.CodeList, 0, BackupCodeCount)
	for i := 0; i < BackupCodeCount; i++ {
		code, err := utils.GenerateBackupCode()
		if err != nil {
			return nil, nil, err
		}
		sealed, err := s.Encryptor.Encrypt(code)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encrypt backup code: %w", err)
		}
		plain = append(plain, code)
		encrypted = append(encrypted, sealed)
	}
	return plain, encrypted, nil
}

// notifyLockout sends a best-effort security notice when an account enters a
// lockout window.
func (s *Service) notifyLockout(userID uint, settings *securityModel.SecuritySettings) {
	if s.Mailer == nil || settings.LockedUntil == nil {
		return
	}

	var u userModel.User
	if err := s.DB.First(&u, userID).Error; err != nil {
		logger.Error("Failed to load user for lockout notice", err)
		return
	}

	body := fmt.Sprintf(
		"Your account was temporarily locked after %d failed two-factor attempts. Verification is blocked until %s.",
		securityModel.MaxFailedAttempts,
		settings.LockedUntil.Format(time.RFC1123),
	)
	if err := s.Mailer.Send(u.Email, "Security alert: account temporarily locked", body); err != nil {
		logger.Error("Failed to send lockout notice", err)
	}
}

func renderQRCode(key *otp.Key) (string, error) {
	img, err := key.Image(200, 200)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

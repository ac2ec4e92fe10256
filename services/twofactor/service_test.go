package twofactor

import (
	"fmt"
	"testing"
	"time"

	auditModel "echoshop/models/audit"
	securityModel "echoshop/models/security"
	sessionModel "echoshop/models/session"
	auditService "echoshop/services/audit"
	"echoshop/utils"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	enc, err := utils.NewEncryptor("service-test-secret")
	require.NoError(t, err)
	svc := NewService(db, enc, auditService.NewRecorder(db), nil, "EchoShopTest")
	return svc, db
}

// enroll runs setup and confirms it, returning the plaintext TOTP secret and
// the backup codes.
func enroll(t *testing.T, svc *Service, userID uint) (string, []string) {
	t.Helper()

	result, err := svc.Setup(userID, fmt.Sprintf("user-%d", userID))
	require.NoError(t, err)
	require.NotEmpty(t, result.Secret)
	require.Len(t, result.BackupCodes, BackupCodeCount)

	code, err := totp.GenerateCode(result.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.VerifySetup(userID, code))

	return result.Secret, result.BackupCodes
}

// wrongCode returns a 6-digit code that is not valid for the secret in any
// nearby time window.
func wrongCode(t *testing.T, secret string) string {
	t.Helper()

	valid := make(map[string]bool)
	for offset := -90; offset <= 90; offset += 30 {
		code, err := totp.GenerateCode(secret, time.Now().Add(time.Duration(offset)*time.Second))
		require.NoError(t, err)
		valid[code] = true
	}

	for i := 0; i < 10; i++ {
		candidate := fmt.Sprintf("%06d", i)
		if !valid[candidate] {
			return candidate
		}
	}
	t.Fatal("could not find an invalid code")
	return ""
}

func loadSettingsForTest(t *testing.T, db *gorm.DB, userID uint) *securityModel.SecuritySettings {
	t.Helper()
	var settings securityModel.SecuritySettings
	require.NoError(t, db.Where("user_id = ?", userID).First(&settings).Error)
	return &settings
}

func TestSetupAndVerifySetup(t *testing.T) {
	svc, db := newTestService(t)
	secret, _ := enroll(t, svc, 1)

	enabled, enabledAt, err := svc.Status(1)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.NotNil(t, enabledAt)

	// The stored secret is encrypted, never the plaintext
	settings := loadSettingsForTest(t, db, 1)
	assert.NotEqual(t, secret, settings.TOTPSecret)
	assert.NotContains(t, settings.TOTPSecret, secret)
}

func TestSetupStaysDisabledUntilConfirmed(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Setup(2, "user-2")
	require.NoError(t, err)

	enabled, _, err := svc.Status(2)
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestVerifyWithValidCode(t *testing.T) {
	svc, _ := newTestService(t)
	secret, _ := enroll(t, svc, 1)

	sess, err := svc.Sessions.Create(1, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	result, err := svc.Verify(sess.SessionToken, code, "", sessionModel.PurposeLogin, "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, uint(1), result.UserID)
	assert.Equal(t, sess.SessionToken, result.SessionToken)
}

func TestVerifyRejectsReplay(t *testing.T) {
	svc, _ := newTestService(t)
	secret, _ := enroll(t, svc, 1)

	sess, err := svc.Sessions.Create(1, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	_, err = svc.Verify(sess.SessionToken, code, "", sessionModel.PurposeLogin, "")
	require.NoError(t, err)

	_, err = svc.Verify(sess.SessionToken, code, "", sessionModel.PurposeLogin, "")
	assert.ErrorIs(t, err, ErrSessionUsed)
}

func TestVerifyRejectsExpiredSession(t *testing.T) {
	svc, db := newTestService(t)
	secret, _ := enroll(t, svc, 1)

	sess, err := svc.Sessions.Create(1, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)
	require.NoError(t, db.Model(&sessionModel.ChallengeSession{}).
		Where("id = ?", sess.ID).
		Update("expires_at", time.Now().Add(-time.Second)).Error)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	_, err = svc.Verify(sess.SessionToken, code, "", sessionModel.PurposeLogin, "")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestVerifyRejectsPurposeMismatch(t *testing.T) {
	svc, _ := newTestService(t)
	secret, _ := enroll(t, svc, 1)

	sess, err := svc.Sessions.Create(1, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	_, err = svc.Verify(sess.SessionToken, code, "", sessionModel.PurposeCriticalAction, "")
	assert.ErrorIs(t, err, ErrPurposeMismatch)
}

func TestVerifyRejectsUnknownToken(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Verify("no-such-token", "123456", "", sessionModel.PurposeLogin, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestVerifyRejectsWhenNotEnrolled(t *testing.T) {
	svc, _ := newTestService(t)

	sess, err := svc.Sessions.Create(9, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)

	_, err = svc.Verify(sess.SessionToken, "123456", "", sessionModel.PurposeLogin, "")
	assert.ErrorIs(t, err, ErrNotEnabled)
}

func TestFailureCounterResetsOnSuccess(t *testing.T) {
	svc, db := newTestService(t)
	secret, _ := enroll(t, svc, 1)

	sess, err := svc.Sessions.Create(1, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)

	bad := wrongCode(t, secret)
	for i := 1; i <= 4; i++ {
		_, err := svc.Verify(sess.SessionToken, bad, "", sessionModel.PurposeLogin, "")
		var invalid *InvalidCodeError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, securityModel.MaxFailedAttempts-i, invalid.Remaining)
	}

	settings := loadSettingsForTest(t, db, 1)
	assert.Equal(t, 4, settings.FailedAttempts)
	assert.Nil(t, settings.LockedUntil)

	good, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	_, err = svc.Verify(sess.SessionToken, good, "", sessionModel.PurposeLogin, "")
	require.NoError(t, err)

	settings = loadSettingsForTest(t, db, 1)
	assert.Equal(t, 0, settings.FailedAttempts)
	assert.Nil(t, settings.LockedUntil)
	assert.NotNil(t, settings.LastUsedAt)
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	svc, db := newTestService(t)
	secret, _ := enroll(t, svc, 1)

	sess, err := svc.Sessions.Create(1, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)

	bad := wrongCode(t, secret)
	before := time.Now()
	for i := 0; i < securityModel.MaxFailedAttempts; i++ {
		_, err := svc.Verify(sess.SessionToken, bad, "", sessionModel.PurposeLogin, "")
		require.Error(t, err)
	}

	settings := loadSettingsForTest(t, db, 1)
	assert.Equal(t, securityModel.MaxFailedAttempts, settings.FailedAttempts)
	require.NotNil(t, settings.LockedUntil)
	assert.WithinDuration(t, before.Add(securityModel.LockoutDuration), *settings.LockedUntil, 5*time.Second)

	// The locked attempt is rejected before the code is examined: even a
	// correct code fails, and the counter does not move
	good, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	_, err = svc.Verify(sess.SessionToken, good, "", sessionModel.PurposeLogin, "")
	var locked *LockedError
	require.ErrorAs(t, err, &locked)

	settings = loadSettingsForTest(t, db, 1)
	assert.Equal(t, securityModel.MaxFailedAttempts, settings.FailedAttempts)
}

func TestBackupCodeIsSingleUse(t *testing.T) {
	svc, db := newTestService(t)
	_, backupCodes := enroll(t, svc, 1)

	first, err := svc.Sessions.Create(1, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)

	result, err := svc.Verify(first.SessionToken, "", backupCodes[0], sessionModel.PurposeLogin, "")
	require.NoError(t, err)
	assert.Equal(t, uint(1), result.UserID)

	settings := loadSettingsForTest(t, db, 1)
	assert.Len(t, settings.BackupCodes, BackupCodeCount-1)

	// The consumed code no longer works
	second, err := svc.Sessions.Create(1, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)

	_, err = svc.Verify(second.SessionToken, "", backupCodes[0], sessionModel.PurposeLogin, "")
	var invalid *InvalidCodeError
	assert.ErrorAs(t, err, &invalid)

	// A different code from the set still works
	result, err = svc.Verify(second.SessionToken, "", backupCodes[1], sessionModel.PurposeLogin, "")
	require.NoError(t, err)
	assert.Equal(t, uint(1), result.UserID)
}

func TestVerifyRecordsAuditTrail(t *testing.T) {
	svc, db := newTestService(t)
	secret, _ := enroll(t, svc, 1)

	sess, err := svc.Sessions.Create(1, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)

	bad := wrongCode(t, secret)
	_, err = svc.Verify(sess.SessionToken, bad, "", sessionModel.PurposeLogin, "10.0.0.1")
	require.Error(t, err)

	good, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	_, err = svc.Verify(sess.SessionToken, good, "", sessionModel.PurposeLogin, "10.0.0.1")
	require.NoError(t, err)

	var failures, successes int64
	require.NoError(t, db.Model(&auditModel.TwoFactorEvent{}).
		Where("user_id = ? AND success = ?", 1, false).Count(&failures).Error)
	require.NoError(t, db.Model(&auditModel.TwoFactorEvent{}).
		Where("user_id = ? AND success = ?", 1, true).Count(&successes).Error)

	assert.Equal(t, int64(1), failures)
	assert.Equal(t, int64(1), successes)
}

func TestValidateActionSession(t *testing.T) {
	svc, _ := newTestService(t)
	secret, _ := enroll(t, svc, 1)

	action := sessionModel.ActionDeleteProduct
	sess, err := svc.Sessions.Create(1, sessionModel.PurposeCriticalAction, &action, nil)
	require.NoError(t, err)

	// Unverified sessions never pass
	ok, err := svc.ValidateActionSession(sess.SessionToken, 1, sessionModel.ActionDeleteProduct)
	require.NoError(t, err)
	assert.False(t, ok)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	_, err = svc.Verify(sess.SessionToken, code, "", sessionModel.PurposeCriticalAction, "")
	require.NoError(t, err)

	ok, err = svc.ValidateActionSession(sess.SessionToken, 1, sessionModel.ActionDeleteProduct)
	require.NoError(t, err)
	assert.True(t, ok)

	// Wrong action, wrong user, unknown token: all rejected
	ok, err = svc.ValidateActionSession(sess.SessionToken, 1, sessionModel.ActionBulkDelete)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.ValidateActionSession(sess.SessionToken, 2, sessionModel.ActionDeleteProduct)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.ValidateActionSession("no-such-token", 1, sessionModel.ActionDeleteProduct)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisableClearsState(t *testing.T) {
	svc, db := newTestService(t)
	secret, _ := enroll(t, svc, 1)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.Disable(1, code))

	enabled, _, err := svc.Status(1)
	require.NoError(t, err)
	assert.False(t, enabled)

	var count int64
	require.NoError(t, db.Model(&securityModel.SecuritySettings{}).
		Where("user_id = ?", 1).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestRegenerateBackupCodes(t *testing.T) {
	svc, _ := newTestService(t)
	_, original := enroll(t, svc, 1)

	fresh, err := svc.RegenerateBackupCodes(1)
	require.NoError(t, err)
	require.Len(t, fresh, BackupCodeCount)

	// Old codes are gone
	sess, err := svc.Sessions.Create(1, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)
	_, err = svc.Verify(sess.SessionToken, "", original[0], sessionModel.PurposeLogin, "")
	assert.Error(t, err)

	// New codes work
	_, err = svc.Verify(sess.SessionToken, "", fresh[0], sessionModel.PurposeLogin, "")
	assert.NoError(t, err)
}

func TestRequireIssuesChallenge(t *testing.T) {
	svc, _ := newTestService(t)
	enroll(t, svc, 1)

	action := sessionModel.ActionPayoutRequest
	result, err := svc.Require(1, "vendor", sessionModel.PurposeCriticalAction, &action, nil)
	require.NoError(t, err)
	assert.True(t, result.Required)
	assert.True(t, result.Enabled)
	assert.NotEmpty(t, result.SessionToken)
	assert.False(t, result.ExpiresAt.IsZero())
}

func TestRequireNotRequiredForUserLogin(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Require(1, "user", sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)
	assert.False(t, result.Required)
	assert.Empty(t, result.SessionToken)
}

func TestRequireReportsMissingEnrollment(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Require(4, "admin", sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Required)
	assert.False(t, result.Enabled)
	assert.Empty(t, result.SessionToken)
}

package twofactor

import (
	"errors"
	"time"

	"echoshop/constants"
	"echoshop/logger"
	sessionModel "echoshop/models/session"
	userModel "echoshop/models/user"
	twofactorService "echoshop/services/twofactor"
	"echoshop/types"
	twofactorTypes "echoshop/types/twofactor"
	"echoshop/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Controller handles the two-factor HTTP surface: requirement checks,
// verification, enrollment and status.
type Controller struct {
	DB      *gorm.DB
	Logger  *logger.AsyncLogger
	Service *twofactorService.Service
}

func NewTwoFactorController(db *gorm.DB, asyncLogger *logger.AsyncLogger, service *twofactorService.Service) *Controller {
	return &Controller{
		DB:      db,
		Logger:  asyncLogger,
		Service: service,
	}
}

// Require evaluates the two-factor policy for the caller and issues a
// challenge session when verification must happen first.
func (tc *Controller) Require(c *fiber.Ctx) error {
	var req twofactorTypes.RequireRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
			Message: "Invalid request body",
			Status:  fiber.StatusBadRequest,
		})
	}
	if msg := types.ValidateStruct(&req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
			Message: msg,
			Status:  fiber.StatusBadRequest,
		})
	}

	purpose := sessionModel.Purpose(req.Purpose)
	if !purpose.IsValid() {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
			Message: "Invalid purpose",
			Status:  fiber.StatusBadRequest,
		})
	}

	var actionType *sessionModel.ActionType
	if purpose == sessionModel.PurposeCriticalAction {
		at := sessionModel.ActionType(req.ActionType)
		if !at.IsValid() {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Message: "Invalid or missing action type",
				Status:  fiber.StatusBadRequest,
			})
		}
		actionType = &at
	}

	callerID, ok := utils.CurrentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
			Message: "Authentication required",
			Status:  fiber.StatusUnauthorized,
		})
	}

	targetID := callerID
	role := utils.CurrentUserRole(c)

	// Admins may evaluate the policy for another account
	if req.UserID != nil && *req.UserID != callerID {
		if role != constants.RoleAdmin && role != constants.RoleOwner {
			return c.Status(fiber.StatusForbidden).JSON(types.ErrorResponse{
				Message: "Insufficient permissions",
				Status:  fiber.StatusForbidden,
			})
		}
		var target userModel.User
		if err := tc.DB.First(&target, *req.UserID).Error; err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Message: "Unknown user",
				Status:  fiber.StatusBadRequest,
			})
		}
		targetID = target.ID
		role = target.Role
	}

	var actionContext *string
	if req.ActionContext != "" {
		actionContext = &req.ActionContext
	}

	result, err := tc.Service.Require(targetID, role, purpose, actionType, actionContext)
	if err != nil {
		logger.Error("Failed to evaluate two-factor requirement", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
			Message: "Internal server error",
			Status:  fiber.StatusInternalServerError,
		})
	}

	resp := twofactorTypes.RequireResponse{Required: result.Required}
	if result.Required {
		resp.Enabled = result.Enabled
		resp.SessionToken = result.SessionToken
		if !result.ExpiresAt.IsZero() {
			resp.ExpiresAt = result.ExpiresAt.Format(time.RFC3339)
		}
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// VerifyLogin checks a submitted code against a login challenge session.
func (tc *Controller) VerifyLogin(c *fiber.Ctx) error {
	return tc.verify(c, sessionModel.PurposeLogin)
}

// VerifyAction checks a submitted code against a critical-action challenge
// session.
func (tc *Controller) VerifyAction(c *fiber.Ctx) error {
	return tc.verify(c, sessionModel.PurposeCriticalAction)
}

func (tc *Controller) verify(c *fiber.Ctx, purpose sessionModel.Purpose) error {
	var req twofactorTypes.VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return c.Status(fiber.StatusBadRequest).JSON(types.TwoFactorErrorResponse{
			Error: "invalid request body",
		})
	}
	if msg := types.ValidateStruct(&req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.TwoFactorErrorResponse{
			Error: msg,
		})
	}
	if req.Code == "" && req.BackupCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.TwoFactorErrorResponse{
			Error: "either a code or a backup code is required",
		})
	}

	result, err := tc.Service.Verify(req.SessionToken, req.Code, req.BackupCode, purpose, c.IP())
	if err != nil {
		tc.Logger.Log(utils.CreateSanitizedLogEntry(c))
		return respondVerifyError(c, err)
	}

	tc.Logger.Log(utils.CreateSanitizedLogEntry(c))
	return c.Status(fiber.StatusOK).JSON(twofactorTypes.VerifyResponse{
		Success:      true,
		UserID:       result.UserID,
		SessionToken: result.SessionToken,
	})
}

// respondVerifyError maps verification failures onto the HTTP error
// taxonomy.
func respondVerifyError(c *fiber.Ctx, err error) error {
	var locked *twofactorService.LockedError
	if errors.As(err, &locked) {
		return c.Status(fiber.StatusLocked).JSON(types.TwoFactorErrorResponse{
			Error: locked.Error(),
		})
	}

	var invalid *twofactorService.InvalidCodeError
	if errors.As(err, &invalid) {
		remaining := invalid.Remaining
		return c.Status(fiber.StatusBadRequest).JSON(types.TwoFactorErrorResponse{
			Error:             invalid.Error(),
			RemainingAttempts: &remaining,
		})
	}

	switch {
	case errors.Is(err, twofactorService.ErrSessionNotFound),
		errors.Is(err, twofactorService.ErrSessionUsed),
		errors.Is(err, twofactorService.ErrSessionExpired),
		errors.Is(err, twofactorService.ErrPurposeMismatch):
		return c.Status(fiber.StatusBadRequest).JSON(types.TwoFactorErrorResponse{
			Error: err.Error(),
		})
	case errors.Is(err, twofactorService.ErrNotEnabled):
		return c.Status(fiber.StatusForbidden).JSON(types.TwoFactorErrorResponse{
			Error:       err.Error(),
			Requires2FA: true,
		})
	default:
		logger.Error("Two-factor verification failed", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.TwoFactorErrorResponse{
			Error: "internal server error",
		})
	}
}

// Status reports whether two-factor is enabled for the caller.
func (tc *Controller) Status(c *fiber.Ctx) error {
	userID, ok := utils.CurrentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
			Message: "Authentication required",
			Status:  fiber.StatusUnauthorized,
		})
	}

	enabled, enabledAt, err := tc.Service.Status(userID)
	if err != nil {
		logger.Error("Failed to load two-factor status", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
			Message: "Internal server error",
			Status:  fiber.StatusInternalServerError,
		})
	}

	resp := twofactorTypes.StatusResponse{Enabled: enabled}
	if enabledAt != nil {
		resp.EnabledAt = enabledAt.Format(time.RFC3339)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// Setup generates a fresh TOTP secret and backup codes for the caller. The
// setup is confirmed and enabled by VerifySetup.
func (tc *Controller) Setup(c *fiber.Ctx) error {
	userID, ok := utils.CurrentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
			Message: "Authentication required",
			Status:  fiber.StatusUnauthorized,
		})
	}

	accountName := utils.CurrentUsername(c)
	result, err := tc.Service.Setup(userID, accountName)
	if err != nil {
		logger.Error("Failed to set up two-factor", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
			Message: "Internal server error",
			Status:  fiber.StatusInternalServerError,
		})
	}

	return c.Status(fiber.StatusOK).JSON(twofactorTypes.SetupResponse{
		Secret:      result.Secret,
		QRCode:      result.QRCode,
		OTPAuthURL:  result.OTPAuthURL,
		BackupCodes: result.BackupCodes,
		Message:     "Scan the QR code with your authenticator app, then confirm with a code. Store the backup codes somewhere safe; they are shown only once.",
	})
}

// VerifySetup confirms enrollment with a first valid code.
func (tc *Controller) VerifySetup(c *fiber.Ctx) error {
	userID, ok := utils.CurrentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
			Message: "Authentication required",
			Status:  fiber.StatusUnauthorized,
		})
	}

	var req twofactorTypes.VerifySetupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
			Message: "Invalid request body",
			Status:  fiber.StatusBadRequest,
		})
	}
	if msg := types.ValidateStruct(&req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
			Message: msg,
			Status:  fiber.StatusBadRequest,
		})
	}

	if err := tc.Service.VerifySetup(userID, req.Code); err != nil {
		return respondVerifyError(c, err)
	}

	tc.Logger.Log(utils.CreateSanitizedLogEntry(c))
	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Message: "Two-factor authentication enabled",
		Status:  fiber.StatusOK,
	})
}

// Disable clears all stored two-factor state after a final code check.
func (tc *Controller) Disable(c *fiber.Ctx) error {
	userID, ok := utils.CurrentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
			Message: "Authentication required",
			Status:  fiber.StatusUnauthorized,
		})
	}

	var req twofactorTypes.DisableRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
			Message: "Invalid request body",
			Status:  fiber.StatusBadRequest,
		})
	}
	if msg := types.ValidateStruct(&req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
			Message: msg,
			Status:  fiber.StatusBadRequest,
		})
	}

	if err := tc.Service.Disable(userID, req.Code); err != nil {
		return respondVerifyError(c, err)
	}

	tc.Logger.Log(utils.CreateSanitizedLogEntry(c))
	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Message: "Two-factor authentication disabled",
		Status:  fiber.StatusOK,
	})
}

// AuditEvents lists a user's newest verification events. Admin surface.
func (tc *Controller) AuditEvents(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("userId")
	if err != nil || userID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
			Message: "Invalid user id",
			Status:  fiber.StatusBadRequest,
		})
	}

	events, err := tc.Service.Audit.EventsForUser(uint(userID), c.QueryInt("limit", 100))
	if err != nil {
		logger.Error("Failed to load audit events", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
			Message: "Internal server error",
			Status:  fiber.StatusInternalServerError,
		})
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Message: "OK",
		Status:  fiber.StatusOK,
		Data:    events,
	})
}

// RegenerateBackupCodes replaces the stored backup code set.
func (tc *Controller) RegenerateBackupCodes(c *fiber.Ctx) error {
	userID, ok := utils.CurrentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
			Message: "Authentication required",
			Status:  fiber.StatusUnauthorized,
		})
	}

	codes, err := tc.Service.RegenerateBackupCodes(userID)
	if err != nil {
		if errors.Is(err, twofactorService.ErrNotEnabled) {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Message: err.Error(),
				Status:  fiber.StatusBadRequest,
			})
		}
		logger.Error("Failed to regenerate backup codes", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
			Message: "Internal server error",
			Status:  fiber.StatusInternalServerError,
		})
	}

	return c.Status(fiber.StatusOK).JSON(twofactorTypes.BackupCodesResponse{
		BackupCodes: codes,
		Message:     "New backup codes generated. Previous codes no longer work.",
	})
}

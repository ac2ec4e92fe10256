package middleware

import (
	"echoshop/constants"
	"echoshop/logger"
	sessionModel "echoshop/models/session"
	"echoshop/services/twofactor"
	"echoshop/types"
	"echoshop/utils"

	"github.com/gofiber/fiber/v2"
)

// RequireTwoFactor gates a critical action behind a verified challenge
// session. The caller presents the token from a completed verification in
// the X-2FA-Session-Token header; the token is re-validated server side on
// every request.
func RequireTwoFactor(svc *twofactor.Service, action sessionModel.ActionType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := utils.CurrentUserID(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
				Message: "Authentication required",
				Status:  fiber.StatusUnauthorized,
			})
		}

		token := c.Get(constants.HeaderTwoFactorSession)
		if token == "" {
			return c.Status(fiber.StatusForbidden).JSON(types.TwoFactorErrorResponse{
				Error:       "two-factor verification required for this action",
				Requires2FA: true,
			})
		}

		valid, err := svc.ValidateActionSession(token, userID, action)
		if err != nil {
			logger.Error("Failed to validate two-factor session", err)
			return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
				Message: "Internal server error",
				Status:  fiber.StatusInternalServerError,
			})
		}
		if !valid {
			return c.Status(fiber.StatusForbidden).JSON(types.TwoFactorErrorResponse{
				Error:       "two-factor verification required for this action",
				Requires2FA: true,
			})
		}

		return c.Next()
	}
}

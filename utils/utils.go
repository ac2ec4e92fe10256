package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"echoshop/models/user"
	"echoshop/types"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// GenerateToken signs an HS256 JWT carrying the user's identity, role and
// permissions.
func GenerateToken(u *user.User) (string, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return "", fmt.Errorf("JWT_SECRET is not set")
	}

	permissions := make([]interface{}, 0, len(u.Permissions))
	for _, p := range u.Permissions {
		permissions = append(permissions, p)
	}

	claims := jwt.MapClaims{
		"user_id":     float64(u.ID),
		"uuid":        u.Uuid,
		"username":    u.Username,
		"role":        u.Role,
		"permissions": permissions,
		"iat":         time.Now().Unix(),
		"exp":         time.Now().Add(24 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// CurrentUserID extracts the caller's user id from the JWT claims attached by
// the auth middleware.
func CurrentUserID(c *fiber.Ctx) (uint, bool) {
	claims, ok := c.Locals("user").(jwt.MapClaims)
	if !ok {
		return 0, false
	}
	id, ok := claims["user_id"].(float64)
	if !ok || id <= 0 {
		return 0, false
	}
	return uint(id), true
}

// CurrentUserRole extracts the caller's role from the JWT claims. Returns ""
// when the claim is absent; the policy layer decides what that means.
func CurrentUserRole(c *fiber.Ctx) string {
	claims, ok := c.Locals("user").(jwt.MapClaims)
	if !ok {
		return ""
	}
	role, _ := claims["role"].(string)
	return role
}

// CurrentUsername extracts the caller's username from the JWT claims.
func CurrentUsername(c *fiber.Ctx) string {
	claims, ok := c.Locals("user").(jwt.MapClaims)
	if !ok {
		return ""
	}
	username, _ := claims["username"].(string)
	return username
}

// sanitizeRequestBody redacts secrets and large payloads before the request
// body is handed to the async request logger.
func sanitizeRequestBody(c *fiber.Ctx) string {
	body := string(c.Body())

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(body), &payload); err == nil {
		redacted := false
		for key := range payload {
			lower := strings.ToLower(key)
			if strings.Contains(lower, "password") || strings.Contains(lower, "code") ||
				strings.Contains(lower, "secret") || strings.Contains(lower, "token") {
				payload[key] = "[REDACTED]"
				redacted = true
			}
		}
		if redacted {
			if jsonBytes, err := json.Marshal(payload); err == nil {
				return string(jsonBytes)
			}
		}
	}

	if len(body) > 10000 {
		return "[LARGE_REQUEST_BODY_TRUNCATED]"
	}

	return body
}

// CreateSanitizedLogEntry creates a deep copied and sanitized log entry for
// the async request logger. Codes, passwords and tokens never reach the log
// table in the clear.
func CreateSanitizedLogEntry(c *fiber.Ctx) types.LogEntry {
	// Create deep copies of all data to prevent memory reference issues
	method := string([]byte(c.Method()))
	url := string([]byte(c.OriginalURL()))
	requestBody := sanitizeRequestBody(c)
	responseBody := string(append([]byte(nil), c.Response().Body()...))

	// Deep copy headers
	requestHeaders := make([]byte, len(c.Request().Header.Header()))
	copy(requestHeaders, c.Request().Header.Header())

	responseHeaders := make([]byte, len(c.Response().Header.Header()))
	copy(responseHeaders, c.Response().Header.Header())

	entry := types.LogEntry{
		Method:          method,
		URL:             url,
		RequestBody:     requestBody,
		ResponseBody:    responseBody,
		RequestHeaders:  string(requestHeaders),
		ResponseHeaders: string(responseHeaders),
		StatusCode:      c.Response().StatusCode(),
		CreatedAt:       time.Now(),
	}

	if userID, ok := CurrentUserID(c); ok {
		entry.UserID = &userID
	}

	return entry
}

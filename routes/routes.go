package routes

import (
	"os"
	"time"

	"echoshop/constants"
	"echoshop/controllers/auth"
	"echoshop/controllers/product"
	"echoshop/controllers/twofactor"
	"echoshop/httpServices/email"
	"echoshop/logger"
	sessionModel "echoshop/models/session"
	"echoshop/middleware"
	auditService "echoshop/services/audit"
	twofactorService "echoshop/services/twofactor"
	"echoshop/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SetupRoutes wires the service graph once at process start and registers
// all routes. Nothing here lives in package-level state.
func SetupRoutes(app *fiber.App, db *gorm.DB) error {
	encryptor, err := utils.NewEncryptor(os.Getenv("TWOFA_ENCRYPTION_SECRET"))
	if err != nil {
		return err
	}

	issuer := os.Getenv("TWOFA_ISSUER")
	if issuer == "" {
		issuer = "EchoShop"
	}

	mailer := email.NewClient(os.Getenv("MAIL_API_URL"), os.Getenv("MAIL_API_KEY"))
	asyncLogger := logger.NewAsyncLogger(db)
	auditRecorder := auditService.NewRecorder(db)
	twoFactor := twofactorService.NewService(db, encryptor, auditRecorder, mailer, issuer)

	authController := auth.NewAuthController(db, twoFactor, asyncLogger)
	twoFactorController := twofactor.NewTwoFactorController(db, asyncLogger, twoFactor)
	productController := product.NewProductController(db, asyncLogger)

	// Start the async logger processing goroutine
	go asyncLogger.ProcessLog()

	// Opportunistic cleanup of expired challenge sessions
	go twoFactor.Sessions.SweepLoop(5 * time.Minute)

	/*=============================================================================
	| Public Routes
	===============================================================================*/
	api := app.Group("/api")
	api.Post("/register", authController.Register)
	api.Post("/login", authController.Login)
	api.Post("/2fa/verify-login", twoFactorController.VerifyLogin)

	/*=============================================================================
	| Account Routes
	===============================================================================*/
	account := api.Group("/auth").Use(middleware.RequireAuthentication())
	account.Get("/profile", authController.Profile)
	account.Post("/logout", authController.LogOut)
	account.Delete("/account",
		middleware.RequireTwoFactor(twoFactor, sessionModel.ActionDeleteAccount),
		authController.DeleteAccount)

	/*=============================================================================
	| Two-Factor Routes
	===============================================================================*/
	twoFA := api.Group("/2fa").Use(middleware.RequireAuthentication())
	twoFA.Post("/require", twoFactorController.Require)
	twoFA.Post("/verify-action", twoFactorController.VerifyAction)
	twoFA.Get("/status", twoFactorController.Status)
	twoFA.Post("/setup", twoFactorController.Setup)
	twoFA.Post("/verify-setup", twoFactorController.VerifySetup)
	twoFA.Post("/disable", twoFactorController.Disable)
	twoFA.Post("/backup-codes", twoFactorController.RegenerateBackupCodes)
	twoFA.Get("/audit/:userId", middleware.RequirePermissions(
		constants.AdminPermissions...,
	), twoFactorController.AuditEvents)

	/*=============================================================================
	| Product Routes
	===============================================================================*/
	products := api.Group("/products")

	products.Get("/", middleware.RequireAuthentication(), productController.List)

	products.Post("/", middleware.RequirePermissions(
		constants.PermVendorFull,
		constants.PermAdminFull,
		constants.PermOwnerFull,
	), productController.Create)

	products.Delete("/:uuid", middleware.RequirePermissions(
		constants.PermVendorFull,
		constants.PermAdminFull,
		constants.PermOwnerFull,
	), middleware.RequireTwoFactor(twoFactor, sessionModel.ActionDeleteProduct),
		productController.Delete)

	products.Put("/:uuid/pricing", middleware.RequirePermissions(
		constants.PermVendorFull,
		constants.PermAdminFull,
		constants.PermOwnerFull,
	), middleware.RequireTwoFactor(twoFactor, sessionModel.ActionModifyPricing),
		productController.UpdatePricing)

	return nil
}

package product

import (
	"errors"
	"time"

	"echoshop/constants"
	"echoshop/logger"
	productModel "echoshop/models/product"
	"echoshop/types"
	productTypes "echoshop/types/product"
	"echoshop/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Controller handles vendor listings. Destructive operations are routed
// behind the critical-action two-factor gate.
type Controller struct {
	DB     *gorm.DB
	Logger *logger.AsyncLogger
}

func NewProductController(db *gorm.DB, asyncLogger *logger.AsyncLogger) *Controller {
	return &Controller{DB: db, Logger: asyncLogger}
}

// List returns active listings.
func (pc *Controller) List(c *fiber.Ctx) error {
	var products []productModel.Product
	err := pc.DB.Where("active = ? AND deleted_at IS NULL", true).
		Order("created_at DESC").
		Limit(100).
		Find(&products).Error
	if err != nil {
		logger.Error("Failed to list products", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
			Message: "Internal server error",
			Status:  fiber.StatusInternalServerError,
		})
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Message: "OK",
		Status:  fiber.StatusOK,
		Data:    products,
	})
}

// Create adds a listing owned by the calling vendor.
func (pc *Controller) Create(c *fiber.Ctx) error {
	userID, ok := utils.CurrentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
			Message: "Authentication required",
			Status:  fiber.StatusUnauthorized,
		})
	}

	var req productTypes.CreateRequest
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

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	p := productModel.Product{
		Uuid:        uuid.NewString(),
		VendorID:    userID,
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Currency:    currency,
		Active:      true,
	}
	if err := pc.DB.Create(&p).Error; err != nil {
		logger.Error("Failed to create product", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
			Message: "Internal server error",
			Status:  fiber.StatusInternalServerError,
		})
	}

	pc.Logger.Log(utils.CreateSanitizedLogEntry(c))
	return c.Status(fiber.StatusCreated).JSON(types.ApiResponse{
		Message: "Product created",
		Status:  fiber.StatusCreated,
		Data:    p,
	})
}

// loadOwned fetches a listing and checks the caller may mutate it. Admins
// and owners may mutate any listing; vendors only their own.
func (pc *Controller) loadOwned(c *fiber.Ctx) (*productModel.Product, error) {
	userID, ok := utils.CurrentUserID(c)
	if !ok {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
			Message: "Authentication required",
			Status:  fiber.StatusUnauthorized,
		})
	}

	var p productModel.Product
	err := pc.DB.Where("uuid = ? AND deleted_at IS NULL", c.Params("uuid")).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, c.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{
				Message: "Product not found",
				Status:  fiber.StatusNotFound,
			})
		}
		logger.Error("Failed to load product", err)
		return nil, c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
			Message: "Internal server error",
			Status:  fiber.StatusInternalServerError,
		})
	}

	role := utils.CurrentUserRole(c)
	if p.VendorID != userID && role != constants.RoleAdmin && role != constants.RoleOwner {
		return nil, c.Status(fiber.StatusForbidden).JSON(types.ErrorResponse{
			Message: "Insufficient permissions",
			Status:  fiber.StatusForbidden,
		})
	}

	return &p, nil
}

// Delete soft deletes a listing. Routed behind the delete_product gate.
func (pc *Controller) Delete(c *fiber.Ctx) error {
	p, errResp := pc.loadOwned(c)
	if p == nil {
		return errResp
	}

	now := time.Now()
	if err := pc.DB.Model(p).Updates(map[string]interface{}{
		"active":     false,
		"deleted_at": &now,
	}).Error; err != nil {
		logger.Error("Failed to delete product", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
			Message: "Internal server error",
			Status:  fiber.StatusInternalServerError,
		})
	}

	pc.Logger.Log(utils.CreateSanitizedLogEntry(c))
	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Message: "Product deleted",
		Status:  fiber.StatusOK,
	})
}

// UpdatePricing changes a listing's price. Routed behind the modify_pricing
// gate.
func (pc *Controller) UpdatePricing(c *fiber.Ctx) error {
	p, errResp := pc.loadOwned(c)
	if p == nil {
		return errResp
	}

	var req productTypes.UpdatePricingRequest
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

	updates := map[string]interface{}{"price_cents": req.PriceCents}
	if req.Currency != "" {
		updates["currency"] = req.Currency
	}
	if err := pc.DB.Model(p).Updates(updates).Error; err != nil {
		logger.Error("Failed to update pricing", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
			Message: "Internal server error",
			Status:  fiber.StatusInternalServerError,
		})
	}

	pc.Logger.Log(utils.CreateSanitizedLogEntry(c))
	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Message: "Pricing updated",
		Status:  fiber.StatusOK,
		Data:    p,
	})
}

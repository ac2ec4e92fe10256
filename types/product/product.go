package product

// CreateRequest adds a new vendor listing.
type CreateRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"omitempty,max=10000"`
	PriceCents  int64  `json:"price_cents" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"omitempty,len=3,uppercase"`
}

// UpdatePricingRequest changes a listing's price. Gated as a critical action.
type UpdatePricingRequest struct {
	PriceCents int64  `json:"price_cents" validate:"required,gt=0"`
	Currency   string `json:"currency" validate:"omitempty,len=3,uppercase"`
}

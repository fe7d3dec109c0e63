package cart

import (
	"github.com/chicagopizza/pizzeria-backend/internal/storage"
	"github.com/chicagopizza/pizzeria-backend/pkg/types"
	"github.com/shopspring/decimal"
)

// AddItemInput is a menu item being added to the cart.
type AddItemInput struct {
	ID             string                  `json:"id" validate:"required,max=64"`
	Name           string                  `json:"name" validate:"required,max=120"`
	Price          decimal.Decimal         `json:"price"`
	Image          string                  `json:"image,omitempty" validate:"omitempty,max=512"`
	Customizations *storage.Customizations `json:"customizations,omitempty"`
}

// Totals summarizes the cart for badges and sidebars.
type Totals struct {
	Subtotal  types.Money `json:"subtotal"`
	ItemCount int         `json:"item_count"`
}

// CartView is the cart together with its totals.
type CartView struct {
	Items  []storage.CartLine `json:"items"`
	Totals Totals             `json:"totals"`
}

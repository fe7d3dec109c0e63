package orders

import (
	"time"

	"github.com/chicagopizza/pizzeria-backend/internal/storage"
	"github.com/chicagopizza/pizzeria-backend/pkg/enums"
	"github.com/chicagopizza/pizzeria-backend/pkg/types"
)

// PaymentSummary is the payment data handed to the kitchen. Card holds only the masked summary.
type PaymentSummary struct {
	Method enums.PaymentMethod `json:"method"`
	Card   *storage.CardInfo   `json:"card,omitempty"`
}

// OrderSnapshot is the immutable order assembled at placement time.
type OrderSnapshot struct {
	OrderType      enums.OrderType      `json:"order_type"`
	PickupLocation string               `json:"pickup_location,omitempty"`
	Customer       storage.CustomerInfo `json:"customer"`
	Items          []storage.CartLine   `json:"items"`
	Payment        PaymentSummary       `json:"payment"`
	Pricing        types.Pricing        `json:"pricing"`
	PromoCode      string               `json:"promo_code,omitempty"`
	Tip            types.Money          `json:"tip"`
	Notes          string               `json:"notes,omitempty"`
	SubmittedAt    time.Time            `json:"submitted_at"`
}

// Result is what the order sink returns for an accepted order.
type Result struct {
	OrderID         string `json:"order_id"`
	EstimatedWindow string `json:"estimated_window"`
}

// Windows are the estimated fulfillment windows quoted per order type.
type Windows struct {
	Delivery string
	Pickup   string
}

func (w Windows) For(orderType enums.OrderType) string {
	if orderType == enums.OrderTypePickup {
		return w.Pickup
	}
	return w.Delivery
}

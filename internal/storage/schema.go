package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chicagopizza/pizzeria-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Customizations are the optional pizza build choices attached to a cart line.
type Customizations struct {
	Size     string   `json:"size,omitempty"`
	Crust    string   `json:"crust,omitempty"`
	Sauce    string   `json:"sauce,omitempty"`
	Toppings []string `json:"toppings,omitempty"`
}

// Equal compares customizations including topping order.
func (c *Customizations) Equal(other *Customizations) bool {
	if c == nil || other == nil {
		return c.isEmpty() && other.isEmpty()
	}
	if c.Size != other.Size || c.Crust != other.Crust || c.Sauce != other.Sauce {
		return false
	}
	if len(c.Toppings) != len(other.Toppings) {
		return false
	}
	for i := range c.Toppings {
		if c.Toppings[i] != other.Toppings[i] {
			return false
		}
	}
	return true
}

func (c *Customizations) isEmpty() bool {
	return c == nil || (c.Size == "" && c.Crust == "" && c.Sauce == "" && len(c.Toppings) == 0)
}

// CartLine is one menu item in the cart. Price is the unit price.
type CartLine struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int             `json:"quantity"`
	Image          string          `json:"image,omitempty"`
	Customizations *Customizations `json:"customizations,omitempty"`
	AddedAt        time.Time       `json:"added_at"`
}

// LineTotal is price × quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CustomerInfo is the contact and address record collected at step 2.
type CustomerInfo struct {
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	Email                string `json:"email"`
	Phone                string `json:"phone"`
	Address              string `json:"address"`
	Apartment            string `json:"apartment"`
	City                 string `json:"city"`
	State                string `json:"state"`
	ZipCode              string `json:"zip_code"`
	DeliveryInstructions string `json:"delivery_instructions"`
}

// OrderState is the order in progress for one checkout session.
type OrderState struct {
	CurrentStep    int                 `json:"current_step"`
	OrderType      enums.OrderType     `json:"order_type"`
	PickupLocation string              `json:"pickup_location,omitempty"`
	CustomerInfo   CustomerInfo        `json:"customer_info"`
	PaymentMethod  enums.PaymentMethod `json:"payment_method"`
	PromoCode      string              `json:"promo_code,omitempty"`
	Tip            decimal.Decimal     `json:"tip"`
}

// CardInfo is the only card data retained after step 3.
type CardInfo struct {
	LastFour string `json:"last_four"`
	Brand    string `json:"brand"`
}

func validateCart(lines []CartLine) error {
	for i, line := range lines {
		if strings.TrimSpace(line.ID) == "" {
			return fmt.Errorf("line %d: missing id", i)
		}
		if line.Quantity < 1 {
			return fmt.Errorf("line %d: quantity %d below 1", i, line.Quantity)
		}
		if line.Price.IsNegative() {
			return fmt.Errorf("line %d: negative price", i)
		}
	}
	return nil
}

func validateOrderState(s OrderState) error {
	if s.CurrentStep < 1 || s.CurrentStep > 4 {
		return fmt.Errorf("current_step %d out of range", s.CurrentStep)
	}
	if !s.OrderType.IsValid() {
		return fmt.Errorf("unknown order_type %q", s.OrderType)
	}
	if !s.PaymentMethod.IsValid() {
		return fmt.Errorf("unknown payment_method %q", s.PaymentMethod)
	}
	if s.Tip.IsNegative() {
		return errors.New("negative tip")
	}
	return nil
}

func validateCardInfo(c CardInfo) error {
	if len(c.LastFour) != 4 {
		return fmt.Errorf("last_four must have 4 digits")
	}
	for _, r := range c.LastFour {
		if r < '0' || r > '9' {
			return fmt.Errorf("last_four must be numeric")
		}
	}
	if c.Brand == "" {
		return errors.New("missing brand")
	}
	return nil
}

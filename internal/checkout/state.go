package checkout

import (
	"github.com/chicagopizza/pizzeria-backend/internal/storage"
	"github.com/chicagopizza/pizzeria-backend/pkg/enums"
	"github.com/chicagopizza/pizzeria-backend/pkg/types"
	"github.com/shopspring/decimal"
)

const (
	StepOrderType = 1
	StepCustomer  = 2
	StepPayment   = 3
	StepReview    = 4
)

var stepNames = map[int]string{
	StepOrderType: "order_type",
	StepCustomer:  "customer_details",
	StepPayment:   "payment",
	StepReview:    "review",
}

// StepName returns the metric and log label for a step.
func StepName(step int) string {
	if name, ok := stepNames[step]; ok {
		return name
	}
	return "unknown"
}

// SessionRef identifies the two storage owners of a checkout call.
type SessionRef struct {
	SessionID string
	ClientID  string
}

// View is returned by every flow operation.
type View struct {
	State            storage.OrderState `json:"state"`
	Card             *storage.CardInfo  `json:"card,omitempty"`
	Cart             []storage.CartLine `json:"cart"`
	Pricing          types.Pricing      `json:"pricing"`
	PromoDescription string             `json:"promo_description,omitempty"`
	EstimatedWindow  string             `json:"estimated_window"`
	Review           *Review            `json:"review,omitempty"`
}

// StepInput carries the form data submitted with Next for the given step.
type StepInput struct {
	PickupLocation *string               `json:"pickup_location,omitempty"`
	CustomerInfo   *storage.CustomerInfo `json:"customer_info,omitempty"`
	SaveProfile    bool                  `json:"save_profile"`
	Card           *CardForm             `json:"card,omitempty"`
}

// TipInput selects a preset tip or a custom amount. Exactly one must be set.
type TipInput struct {
	Preset *decimal.Decimal `json:"preset,omitempty"`
	Custom *string          `json:"custom,omitempty"`
}

// Review is the read-only summary shown at step 4.
type Review struct {
	OrderType       enums.OrderType    `json:"order_type"`
	PickupLocation  string             `json:"pickup_location,omitempty"`
	EstimatedWindow string             `json:"estimated_window"`
	Contact         ReviewContact      `json:"contact"`
	Address         *ReviewAddress     `json:"address,omitempty"`
	Payment         ReviewPayment      `json:"payment"`
	Items           []storage.CartLine `json:"items"`
	Pricing         types.Pricing      `json:"pricing"`
	PromoCode       string             `json:"promo_code,omitempty"`
}

type ReviewContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type ReviewAddress struct {
	Line1        string `json:"line1"`
	Line2        string `json:"line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`
	Instructions string `json:"instructions,omitempty"`
}

type ReviewPayment struct {
	Method   enums.PaymentMethod `json:"method"`
	Label    string              `json:"label"`
	LastFour string              `json:"last_four,omitempty"`
}

// PlaceOrderInput is the final submission from the review step.
type PlaceOrderInput struct {
	AcceptTerms bool   `json:"accept_terms"`
	Notes       string `json:"notes"`
}

// Confirmation is returned after the kitchen accepted the order.
type Confirmation struct {
	OrderID         string          `json:"order_id"`
	EstimatedWindow string          `json:"estimated_window"`
	Email           string          `json:"email"`
	OrderType       enums.OrderType `json:"order_type"`
	FinalStep       string          `json:"final_step"`
	Pricing         types.Pricing   `json:"pricing"`
}

func defaultState(rules PricingRules) storage.OrderState {
	return storage.OrderState{
		CurrentStep:   StepOrderType,
		OrderType:     enums.OrderTypeDelivery,
		PaymentMethod: enums.PaymentMethodCard,
		Tip:           rules.DefaultTip,
	}
}

func finalStepLabel(orderType enums.OrderType) string {
	if orderType == enums.OrderTypePickup {
		return "Ready for Pickup"
	}
	return "On the Way"
}

func paymentLabel(method enums.PaymentMethod, orderType enums.OrderType, card *storage.CardInfo) string {
	switch method {
	case enums.PaymentMethodCard:
		if card != nil {
			return card.Brand + " ending in " + card.LastFour
		}
		return "Credit Card"
	case enums.PaymentMethodCash:
		if orderType == enums.OrderTypePickup {
			return "Cash on Pickup"
		}
		return "Cash on Delivery"
	case enums.PaymentMethodPayPal:
		return "PayPal"
	default:
		return string(method)
	}
}

package checkout

import (
	"github.com/chicagopizza/pizzeria-backend/internal/storage"
	"github.com/chicagopizza/pizzeria-backend/pkg/config"
	"github.com/chicagopizza/pizzeria-backend/pkg/enums"
	"github.com/chicagopizza/pizzeria-backend/pkg/types"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PricingRules are the configured pricing constants.
type PricingRules struct {
	TaxRate               decimal.Decimal
	DeliveryFee           decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal
	DefaultTip            decimal.Decimal
	TipPresets            []decimal.Decimal
}

// RulesFromConfig lifts the checkout configuration into pricing rules.
func RulesFromConfig(cfg config.CheckoutConfig) PricingRules {
	return PricingRules{
		TaxRate:               cfg.TaxRate,
		DeliveryFee:           cfg.DeliveryFee,
		FreeDeliveryThreshold: cfg.FreeDeliveryThreshold,
		DefaultTip:            cfg.DefaultTip,
		TipPresets:            cfg.TipPresets,
	}
}

// Calculate derives the price breakdown from the order state and cart.
// Every component is rounded to cents, so Total is the exact sum of the parts.
func Calculate(state storage.OrderState, cart []storage.CartLine, rules PricingRules) types.Pricing {
	subtotal := decimal.Zero
	for _, line := range cart {
		subtotal = subtotal.Add(line.LineTotal())
	}
	subtotal = types.RoundCents(subtotal)

	rule, hasPromo := LookupPromotion(state.PromoCode)

	deliveryFee := decimal.Zero
	switch {
	case state.OrderType != enums.OrderTypeDelivery:
	case hasPromo && rule.Kind == enums.PromotionKindFreeDelivery:
	case subtotal.GreaterThanOrEqual(rules.FreeDeliveryThreshold):
	default:
		deliveryFee = types.RoundCents(rules.DeliveryFee)
	}

	tip := decimal.Zero
	if state.OrderType == enums.OrderTypeDelivery {
		tip = types.RoundCents(state.Tip)
	}

	discount := decimal.Zero
	if hasPromo {
		discount = promotionDiscount(rule, subtotal)
	}

	tax := types.RoundCents(subtotal.Sub(discount).Mul(rules.TaxRate))
	total := subtotal.Add(deliveryFee).Add(tip).Add(tax).Sub(discount)

	return types.Pricing{
		Subtotal:    types.Money{Decimal: subtotal},
		DeliveryFee: types.Money{Decimal: deliveryFee},
		Tip:         types.Money{Decimal: tip},
		Discount:    types.Money{Decimal: discount},
		Tax:         types.Money{Decimal: tax},
		Total:       types.Money{Decimal: total},
	}
}

// promotionDiscount never exceeds the subtotal.
func promotionDiscount(rule PromotionRule, subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch rule.Kind {
	case enums.PromotionKindPercentage:
		discount = types.RoundCents(subtotal.Mul(rule.Value).Div(hundred))
	case enums.PromotionKindFixed:
		discount = types.RoundCents(rule.Value)
	case enums.PromotionKindFreeDelivery:
		return decimal.Zero
	default:
		return decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		return subtotal
	}
	return discount
}

// IsTipPreset reports whether amount matches one of the configured presets.
func (r PricingRules) IsTipPreset(amount decimal.Decimal) bool {
	for _, preset := range r.TipPresets {
		if preset.Equal(amount) {
			return true
		}
	}
	return false
}

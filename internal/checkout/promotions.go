package checkout

import (
	"strings"

	"github.com/chicagopizza/pizzeria-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// PromotionRule is one entry of the fixed promotion table.
// Value is a percent for percentage rules and a dollar amount for fixed rules.
type PromotionRule struct {
	Code        string              `json:"code"`
	Kind        enums.PromotionKind `json:"kind"`
	Value       decimal.Decimal     `json:"value"`
	Description string              `json:"description"`
}

var promotions = map[string]PromotionRule{
	"WELCOME10": {Code: "WELCOME10", Kind: enums.PromotionKindPercentage, Value: decimal.NewFromInt(10), Description: "10% off your order"},
	"FREESHIP":  {Code: "FREESHIP", Kind: enums.PromotionKindFreeDelivery, Value: decimal.Zero, Description: "Free delivery"},
	"PIZZA5":    {Code: "PIZZA5", Kind: enums.PromotionKindFixed, Value: decimal.NewFromInt(5), Description: "$5 off your order"},
	"FIRST20":   {Code: "FIRST20", Kind: enums.PromotionKindPercentage, Value: decimal.NewFromInt(20), Description: "20% off first order"},
}

// NormalizePromoCode trims and uppercases user input.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LookupPromotion finds a rule by code, case-insensitively.
func LookupPromotion(code string) (PromotionRule, bool) {
	normalized := NormalizePromoCode(code)
	if normalized == "" {
		return PromotionRule{}, false
	}
	rule, ok := promotions[normalized]
	return rule, ok
}

package types

// Pricing is the derived price breakdown of an order in progress.
// Total always equals Subtotal + DeliveryFee + Tip + Tax - Discount.
type Pricing struct {
	Subtotal    Money `json:"subtotal"`
	DeliveryFee Money `json:"delivery_fee"`
	Tip         Money `json:"tip"`
	Discount    Money `json:"discount"`
	Tax         Money `json:"tax"`
	Total       Money `json:"total"`
}

package checkout

import (
	"strconv"
	"strings"

	"github.com/chicagopizza/pizzeria-backend/internal/storage"
)

const (
	msgCardNumber = "Please enter a valid card number"
	msgCardExpiry = "Please enter a valid expiry date (MM/YY)"
	msgCardCVV    = "Please enter a valid CVV"
	msgCardName   = "Please enter the name on card"

	genericCardBrand = "Card"
)

// CardForm is the raw card entry. It is only ever held in memory for the
// duration of the step 3 transition.
type CardForm struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
	Name   string `json:"name"`
}

type cardFields struct {
	Number string `json:"card_number" validate:"required,digits,min=15,max=19"`
	Expiry string `json:"card_expiry" validate:"required,mmyy"`
	CVV    string `json:"card_cvv" validate:"required,digits,min=3,max=4"`
	Name   string `json:"card_name" validate:"required,min=3"`
}

var cardMessages = map[string]string{
	"card_number": msgCardNumber,
	"card_expiry": msgCardExpiry,
	"card_cvv":    msgCardCVV,
	"card_name":   msgCardName,
}

var cardBrands = []struct {
	prefixes []string
	brand    string
}{
	{prefixes: []string{"4"}, brand: "Visa"},
	{prefixes: []string{"51", "52", "53", "54", "55"}, brand: "Mastercard"},
	{prefixes: []string{"34", "37"}, brand: "American Express"},
	{prefixes: []string{"6011", "65"}, brand: "Discover"},
}

// CleanCardNumber strips the spaces and dashes users type between digit groups.
func CleanCardNumber(number string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(number))
}

// DetectCardBrand matches the cleaned number against the ordered prefix table.
func DetectCardBrand(number string) string {
	cleaned := CleanCardNumber(number)
	for _, entry := range cardBrands {
		for _, prefix := range entry.prefixes {
			if strings.HasPrefix(cleaned, prefix) {
				return entry.brand
			}
		}
	}
	return genericCardBrand
}

// ValidateCard is the card half of the step 3 predicate. On success it returns the
// only card data that is retained.
func ValidateCard(form CardForm) (storage.CardInfo, []FieldError) {
	fields := cardFields{
		Number: CleanCardNumber(form.Number),
		Expiry: strings.TrimSpace(form.Expiry),
		CVV:    strings.TrimSpace(form.CVV),
		Name:   strings.TrimSpace(form.Name),
	}
	if errs := collectFieldErrors(validate.Struct(fields), nil); len(errs) > 0 {
		for i := range errs {
			errs[i].Message = cardMessages[errs[i].Field]
		}
		return storage.CardInfo{}, errs
	}
	return storage.CardInfo{
		LastFour: fields.Number[len(fields.Number)-4:],
		Brand:    DetectCardBrand(fields.Number),
	}, nil
}

func validExpiry(value string) bool {
	if len(value) != 5 || value[2] != '/' {
		return false
	}
	if len(digitsOnly(value[:2])) != 2 {
		return false
	}
	month, err := strconv.Atoi(value[:2])
	if err != nil || month < 1 || month > 12 {
		return false
	}
	return len(digitsOnly(value[3:])) == 2
}

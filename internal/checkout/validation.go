package checkout

import (
	"reflect"
	"slices"
	"strings"

	"github.com/chicagopizza/pizzeria-backend/internal/storage"
	"github.com/chicagopizza/pizzeria-backend/pkg/enums"
	pkgerrors "github.com/chicagopizza/pizzeria-backend/pkg/errors"
	"github.com/go-playground/validator/v10"
)

const (
	msgPickupLocation = "Please select a pickup location"
	msgStepFields     = "Please fill in all required fields correctly"
	msgRequired       = "This field is required"
	msgEmail          = "Please enter a valid email"
	msgPhone          = "Please enter a valid 10-digit phone number"
	msgZip            = "Please enter a valid 5-digit ZIP code"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
		return len(digitsOnly(fl.Field().String())) == 10
	})
	_ = v.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return value != "" && len(digitsOnly(value)) == len(value)
	})
	_ = v.RegisterValidation("mmyy", func(fl validator.FieldLevel) bool {
		return validExpiry(fl.Field().String())
	})
	return v
}

// FieldError is one invalid input field, in form order.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type contactForm struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,phone10"`
}

type addressForm struct {
	Address string `json:"address" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	ZipCode string `json:"zip_code" validate:"required,len=5,digits"`
}

var fieldMessages = map[string]string{
	"email":    msgEmail,
	"phone":    msgPhone,
	"zip_code": msgZip,
}

// NormalizeCustomerInfo trims every field.
func NormalizeCustomerInfo(info storage.CustomerInfo) storage.CustomerInfo {
	return storage.CustomerInfo{
		FirstName:            strings.TrimSpace(info.FirstName),
		LastName:             strings.TrimSpace(info.LastName),
		Email:                strings.TrimSpace(info.Email),
		Phone:                strings.TrimSpace(info.Phone),
		Address:              strings.TrimSpace(info.Address),
		Apartment:            strings.TrimSpace(info.Apartment),
		City:                 strings.TrimSpace(info.City),
		State:                strings.TrimSpace(info.State),
		ZipCode:              strings.TrimSpace(info.ZipCode),
		DeliveryInstructions: strings.TrimSpace(info.DeliveryInstructions),
	}
}

// ValidateOrderType is the step 1 predicate.
func ValidateOrderType(state storage.OrderState, locations []string) []FieldError {
	if state.OrderType != enums.OrderTypePickup {
		return nil
	}
	location := strings.TrimSpace(state.PickupLocation)
	if location == "" || (len(locations) > 0 && !slices.Contains(locations, location)) {
		return []FieldError{{Field: "pickup_location", Message: msgPickupLocation}}
	}
	return nil
}

// ValidateCustomerInfo is the step 2 predicate. Address fields only apply to delivery.
func ValidateCustomerInfo(orderType enums.OrderType, info storage.CustomerInfo) []FieldError {
	info = NormalizeCustomerInfo(info)
	fields := collectFieldErrors(validate.Struct(contactForm{
		FirstName: info.FirstName,
		LastName:  info.LastName,
		Email:     info.Email,
		Phone:     info.Phone,
	}), fieldMessages)
	if orderType == enums.OrderTypeDelivery {
		fields = append(fields, collectFieldErrors(validate.Struct(addressForm{
			Address: info.Address,
			City:    info.City,
			State:   info.State,
			ZipCode: info.ZipCode,
		}), fieldMessages)...)
	}
	return fields
}

func collectFieldErrors(err error, messages map[string]string) []FieldError {
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "form", Message: msgStepFields}}
	}
	fields := make([]FieldError, 0, len(errs))
	for _, fe := range errs {
		msg := messages[fe.Field()]
		if fe.Tag() == "required" || msg == "" {
			msg = msgRequired
		}
		fields = append(fields, FieldError{Field: fe.Field(), Message: msg})
	}
	return fields
}

func stepValidationError(step int, message string, fields []FieldError) *pkgerrors.Error {
	byField := make(map[string]string, len(fields))
	for _, f := range fields {
		byField[f.Field] = f.Message
	}
	focus := ""
	if len(fields) > 0 {
		focus = fields[0].Field
	}
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{
		"step":   step,
		"fields": byField,
		"focus":  focus,
	})
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

package controllers

import (
	"net/http"

	"github.com/chicagopizza/pizzeria-backend/api/middleware"
	"github.com/chicagopizza/pizzeria-backend/api/responses"
	"github.com/chicagopizza/pizzeria-backend/api/validators"
	"github.com/chicagopizza/pizzeria-backend/internal/checkout"
	"github.com/chicagopizza/pizzeria-backend/internal/storage"
	"github.com/chicagopizza/pizzeria-backend/pkg/enums"
	"github.com/chicagopizza/pizzeria-backend/pkg/logger"
)

type orderTypeRequest struct {
	OrderType string `json:"order_type" validate:"required,oneof=delivery pickup"`
}

type pickupLocationRequest struct {
	PickupLocation string `json:"pickup_location"`
}

type paymentMethodRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=card cash paypal"`
}

type promoRequest struct {
	Code string `json:"code"`
}

type pickupLocationsResponse struct {
	Locations []string `json:"locations"`
}

func sessionRef(r *http.Request) checkout.SessionRef {
	return checkout.SessionRef{
		SessionID: middleware.SessionIDFromContext(r.Context()),
		ClientID:  middleware.ClientIDFromContext(r.Context()),
	}
}

// viewHandler adapts a flow operation that returns a View.
func viewHandler(logg *logger.Logger, status int, op func(r *http.Request) (*checkout.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := op(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, view)
	}
}

// CheckoutEnter starts or resumes the checkout for the session.
func CheckoutEnter(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return viewHandler(logg, http.StatusOK, func(r *http.Request) (*checkout.View, error) {
		return svc.Enter(r.Context(), sessionRef(r))
	})
}

func CheckoutCurrent(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return viewHandler(logg, http.StatusOK, func(r *http.Request) (*checkout.View, error) {
		return svc.Current(r.Context(), sessionRef(r))
	})
}

func CheckoutSelectOrderType(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return viewHandler(logg, http.StatusOK, func(r *http.Request) (*checkout.View, error) {
		var payload orderTypeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.SelectOrderType(r.Context(), sessionRef(r), enums.OrderType(payload.OrderType))
	})
}

func CheckoutSelectPickupLocation(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return viewHandler(logg, http.StatusOK, func(r *http.Request) (*checkout.View, error) {
		var payload pickupLocationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.SelectPickupLocation(r.Context(), sessionRef(r), payload.PickupLocation)
	})
}

func CheckoutPickupLocations(svc checkout.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, pickupLocationsResponse{Locations: svc.PickupLocations()})
	}
}

// CheckoutUpdateCustomer stores customer fields as typed; they are validated when step 2 advances.
func CheckoutUpdateCustomer(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return viewHandler(logg, http.StatusOK, func(r *http.Request) (*checkout.View, error) {
		var payload storage.CustomerInfo
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateCustomerInfo(r.Context(), sessionRef(r), payload)
	})
}

func CheckoutSelectPaymentMethod(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return viewHandler(logg, http.StatusOK, func(r *http.Request) (*checkout.View, error) {
		var payload paymentMethodRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.SelectPaymentMethod(r.Context(), sessionRef(r), enums.PaymentMethod(payload.PaymentMethod))
	})
}

func CheckoutApplyPromo(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return viewHandler(logg, http.StatusOK, func(r *http.Request) (*checkout.View, error) {
		var payload promoRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.ApplyPromo(r.Context(), sessionRef(r), payload.Code)
	})
}

func CheckoutSetTip(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return viewHandler(logg, http.StatusOK, func(r *http.Request) (*checkout.View, error) {
		var payload checkout.TipInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.SetTip(r.Context(), sessionRef(r), payload)
	})
}

// CheckoutNext validates the step named in the path and advances past it. The body is optional.
func CheckoutNext(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return viewHandler(logg, http.StatusOK, func(r *http.Request) (*checkout.View, error) {
		step, err := validators.ParsePathInt(r, "step", checkout.StepOrderType, checkout.StepReview)
		if err != nil {
			return nil, err
		}
		var payload checkout.StepInput
		if hasBody(r) {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				return nil, err
			}
		}
		return svc.Next(r.Context(), sessionRef(r), step, payload)
	})
}

func CheckoutBack(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return viewHandler(logg, http.StatusOK, func(r *http.Request) (*checkout.View, error) {
		step, err := validators.ParsePathInt(r, "step", checkout.StepOrderType, checkout.StepReview)
		if err != nil {
			return nil, err
		}
		return svc.Back(r.Context(), sessionRef(r), step)
	})
}

// CheckoutJump moves from review back to an earlier step for editing.
func CheckoutJump(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return viewHandler(logg, http.StatusOK, func(r *http.Request) (*checkout.View, error) {
		step, err := validators.ParsePathInt(r, "step", checkout.StepOrderType, checkout.StepPayment)
		if err != nil {
			return nil, err
		}
		return svc.JumpToStep(r.Context(), sessionRef(r), step)
	})
}

func CheckoutPricing(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pricing, err := svc.Pricing(r.Context(), sessionRef(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pricing)
	}
}

func CheckoutReview(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		review, err := svc.Review(r.Context(), sessionRef(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, review)
	}
}

func CheckoutPlaceOrder(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload checkout.PlaceOrderInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		confirmation, err := svc.PlaceOrder(r.Context(), sessionRef(r), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, confirmation)
	}
}

func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}

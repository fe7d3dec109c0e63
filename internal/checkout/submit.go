package checkout

import (
	"context"
	"strings"

	"github.com/chicagopizza/pizzeria-backend/internal/orders"
	"github.com/chicagopizza/pizzeria-backend/internal/storage"
	pkgerrors "github.com/chicagopizza/pizzeria-backend/pkg/errors"
	"github.com/chicagopizza/pizzeria-backend/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const (
	msgAcceptTerms  = "Please accept the terms and conditions"
	msgEmptyCart    = "Your cart is empty"
	msgSubmitFailed = "Failed to place order. Please try again."
	msgInFlight     = "Your order is already being placed"

	maxNotesLength = 500
)

// PlaceOrder hands the reviewed order to the kitchen. Only one submission per session may be
// outstanding, so state and cart are read only once the session lock is held. The submission
// itself is not cancelled when the caller goes away.
func (s *service) PlaceOrder(ctx context.Context, ref SessionRef, input PlaceOrderInput) (*Confirmation, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	ctx = s.logContext(ctx, ref)
	if !input.AcceptTerms {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgAcceptTerms).WithDetails(map[string]any{"field": "accept_terms"})
	}

	lockKey := s.locker.LockKey("submit", ref.SessionID)
	acquired, err := s.locker.SetNX(ctx, lockKey, uuid.NewString(), s.lockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire submission lock")
	}
	if !acquired {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, msgInFlight)
	}

	submitCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := s.locker.Del(submitCtx, lockKey); err != nil {
			s.logg.Warn(s.logg.WithField(submitCtx, "error", err.Error()), "checkout.lock_release_failed")
		}
	}()

	state, cart, card, err := s.loadSubmittable(submitCtx, ref)
	if err != nil {
		return nil, err
	}

	pricing := Calculate(state, cart, s.rules)
	snapshot := orders.OrderSnapshot{
		OrderType:      state.OrderType,
		PickupLocation: state.PickupLocation,
		Customer:       state.CustomerInfo,
		Items:          cart,
		Payment:        orders.PaymentSummary{Method: state.PaymentMethod, Card: card},
		Pricing:        pricing,
		PromoCode:      state.PromoCode,
		Tip:            pricing.Tip,
		Notes:          trimNotes(input.Notes),
		SubmittedAt:    s.now().UTC(),
	}

	started := s.now()
	result, err := s.submitter.Submit(submitCtx, snapshot)
	s.metrics.ObserveSubmission(s.submitter.Mode(), s.now().Sub(started))
	if err != nil {
		s.metrics.OrderSubmitted(state.OrderType.String(), metrics.ResultFailure)
		logCtx := s.logg.WithFields(submitCtx, map[string]any{
			"submission_mode":   s.submitter.Mode(),
			"submission_reason": orders.ReasonOf(err).String(),
		})
		s.logg.Error(logCtx, "checkout.order_submission_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, msgSubmitFailed).Public()
	}

	if err := s.clearAfterOrder(submitCtx, ref); err != nil {
		s.logg.Error(s.logg.WithField(submitCtx, "order_id", result.OrderID), "checkout.clear_after_order_failed", err)
	}

	window := result.EstimatedWindow
	if strings.TrimSpace(window) == "" {
		window = s.windows.For(state.OrderType)
	}
	s.metrics.OrderSubmitted(state.OrderType.String(), metrics.ResultSuccess)
	s.logg.Info(s.logg.WithFields(submitCtx, map[string]any{
		"order_id":   result.OrderID,
		"order_type": state.OrderType.String(),
		"total":      pricing.Total.String(),
	}), "checkout.order_placed")

	return &Confirmation{
		OrderID:         result.OrderID,
		EstimatedWindow: window,
		Email:           state.CustomerInfo.Email,
		OrderType:       state.OrderType,
		FinalStep:       finalStepLabel(state.OrderType),
		Pricing:         pricing,
	}, nil
}

// loadSubmittable re-checks everything review promised: the step, a non-empty cart, the step 1
// and step 2 predicates and, for card payments, the card summary.
func (s *service) loadSubmittable(ctx context.Context, ref SessionRef) (storage.OrderState, []storage.CartLine, *storage.CardInfo, error) {
	state, err := s.loadState(ctx, ref)
	if err != nil {
		return state, nil, nil, err
	}
	if state.CurrentStep != StepReview {
		return state, nil, nil, stepConflict(state.CurrentStep, "orders can only be placed from review")
	}
	cart, err := s.loadCart(ctx, ref)
	if err != nil {
		return state, nil, nil, err
	}
	if len(cart) == 0 {
		return state, nil, nil, pkgerrors.New(pkgerrors.CodeValidation, msgEmptyCart).WithDetails(map[string]any{"field": "cart"})
	}
	if fields := ValidateOrderType(state, s.locations); len(fields) > 0 {
		return state, nil, nil, stepValidationError(StepOrderType, msgPickupLocation, fields)
	}
	if fields := ValidateCustomerInfo(state.OrderType, state.CustomerInfo); len(fields) > 0 {
		return state, nil, nil, stepValidationError(StepCustomer, msgStepFields, fields)
	}
	if !state.PaymentMethod.RequiresCard() {
		return state, cart, nil, nil
	}
	card, err := s.loadCard(ctx, ref)
	if err != nil {
		return state, nil, nil, err
	}
	if card == nil {
		return state, nil, nil, stepConflict(state.CurrentStep, "card details must be entered again")
	}
	return state, cart, card, nil
}

// clearAfterOrder removes the cart and all checkout state for the session.
func (s *service) clearAfterOrder(ctx context.Context, ref SessionRef) error {
	return multierr.Combine(
		storage.Cart.Delete(ctx, s.store, ref.ClientID),
		storage.CheckoutState.Delete(ctx, s.store, ref.SessionID),
		storage.CheckoutPayment.Delete(ctx, s.store, ref.SessionID),
	)
}

func trimNotes(notes string) string {
	notes = strings.TrimSpace(notes)
	if runes := []rune(notes); len(runes) > maxNotesLength {
		return string(runes[:maxNotesLength])
	}
	return notes
}

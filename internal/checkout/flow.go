package checkout

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/chicagopizza/pizzeria-backend/internal/orders"
	"github.com/chicagopizza/pizzeria-backend/internal/storage"
	"github.com/chicagopizza/pizzeria-backend/pkg/config"
	"github.com/chicagopizza/pizzeria-backend/pkg/enums"
	pkgerrors "github.com/chicagopizza/pizzeria-backend/pkg/errors"
	"github.com/chicagopizza/pizzeria-backend/pkg/logger"
	"github.com/chicagopizza/pizzeria-backend/pkg/metrics"
	"github.com/chicagopizza/pizzeria-backend/pkg/types"
	"github.com/shopspring/decimal"
)

const (
	msgPromoRequired = "Please enter a promo code"
	msgPromoInvalid  = "Invalid promo code"
	msgTipInvalid    = "Please enter a valid tip amount"
)

type submissionLocker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(parts ...string) string
}

type flowMetrics interface {
	StepTransition(step string, result string)
	PromoApplied(code string, result string)
	OrderSubmitted(orderType string, result string)
	ObserveSubmission(mode string, duration time.Duration)
}

// Service drives the four-step checkout for one session at a time.
type Service interface {
	Enter(ctx context.Context, ref SessionRef) (*View, error)
	Current(ctx context.Context, ref SessionRef) (*View, error)
	SelectOrderType(ctx context.Context, ref SessionRef, orderType enums.OrderType) (*View, error)
	SelectPickupLocation(ctx context.Context, ref SessionRef, location string) (*View, error)
	UpdateCustomerInfo(ctx context.Context, ref SessionRef, info storage.CustomerInfo) (*View, error)
	SelectPaymentMethod(ctx context.Context, ref SessionRef, method enums.PaymentMethod) (*View, error)
	ApplyPromo(ctx context.Context, ref SessionRef, code string) (*View, error)
	SetTip(ctx context.Context, ref SessionRef, input TipInput) (*View, error)
	Next(ctx context.Context, ref SessionRef, step int, input StepInput) (*View, error)
	Back(ctx context.Context, ref SessionRef, step int) (*View, error)
	JumpToStep(ctx context.Context, ref SessionRef, step int) (*View, error)
	Pricing(ctx context.Context, ref SessionRef) (types.Pricing, error)
	Review(ctx context.Context, ref SessionRef) (*Review, error)
	PlaceOrder(ctx context.Context, ref SessionRef, input PlaceOrderInput) (*Confirmation, error)
	PickupLocations() []string
}

// ServiceParams wires the checkout flow.
type ServiceParams struct {
	Store     *storage.Store
	Submitter orders.Submitter
	Locker    submissionLocker
	Logger    *logger.Logger
	Metrics   flowMetrics
	Config    config.CheckoutConfig
	Clock     func() time.Time
}

type service struct {
	store     *storage.Store
	submitter orders.Submitter
	locker    submissionLocker
	logg      *logger.Logger
	metrics   flowMetrics
	rules     PricingRules
	windows   orders.Windows
	locations []string
	lockTTL   time.Duration
	now       func() time.Time
}

// NewService builds the checkout flow service.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if params.Submitter == nil {
		return nil, fmt.Errorf("order submitter required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("submission locker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	m := params.Metrics
	if m == nil {
		m = metrics.NewCheckoutMetrics(nil)
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	lockTTL := params.Config.SubmissionLockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	locations := make([]string, 0, len(params.Config.PickupLocations))
	for _, loc := range params.Config.PickupLocations {
		if trimmed := strings.TrimSpace(loc); trimmed != "" {
			locations = append(locations, trimmed)
		}
	}
	return &service{
		store:     params.Store,
		submitter: params.Submitter,
		locker:    params.Locker,
		logg:      params.Logger,
		metrics:   m,
		rules:     RulesFromConfig(params.Config),
		windows:   orders.Windows{Delivery: params.Config.DeliveryWindow, Pickup: params.Config.PickupWindow},
		locations: locations,
		lockTTL:   lockTTL,
		now:       now,
	}, nil
}

func (s *service) PickupLocations() []string {
	return slices.Clone(s.locations)
}

// Enter restores or creates the session state. The card summary never survives re-entry,
// so a card order that had reached review is sent back to the payment step.
func (s *service) Enter(ctx context.Context, ref SessionRef) (*View, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	ctx = s.logContext(ctx, ref)

	state, err := s.loadState(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := storage.CheckoutPayment.Delete(ctx, s.store, ref.SessionID); err != nil {
		return nil, err
	}
	if state.CurrentStep > StepPayment && state.PaymentMethod.RequiresCard() {
		state.CurrentStep = StepPayment
	}

	profile, ok, err := storage.CustomerProfile.Read(ctx, s.store, ref.ClientID)
	if err != nil {
		return nil, err
	}
	if ok {
		state.CustomerInfo = prefill(state.CustomerInfo, profile)
	}

	if err := s.saveState(ctx, ref, state); err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "step", state.CurrentStep), "checkout.entered")
	return s.view(ctx, ref, state)
}

func (s *service) Current(ctx context.Context, ref SessionRef) (*View, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	state, err := s.loadState(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, ref, state)
}

// SelectOrderType switches delivery/pickup. A change sends a session past step 1 back to step 1.
func (s *service) SelectOrderType(ctx context.Context, ref SessionRef, orderType enums.OrderType) (*View, error) {
	if !orderType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order type").WithDetails(map[string]any{"field": "order_type"})
	}
	return s.mutate(ctx, ref, func(state *storage.OrderState) error {
		if state.OrderType == orderType {
			return nil
		}
		state.OrderType = orderType
		if orderType == enums.OrderTypeDelivery {
			state.PickupLocation = ""
		}
		rewind(state, StepOrderType)
		return nil
	})
}

func (s *service) SelectPickupLocation(ctx context.Context, ref SessionRef, location string) (*View, error) {
	location = strings.TrimSpace(location)
	if location == "" || !slices.Contains(s.locations, location) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgPickupLocation).WithDetails(map[string]any{"field": "pickup_location"})
	}
	return s.mutate(ctx, ref, func(state *storage.OrderState) error {
		if state.OrderType != enums.OrderTypePickup {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "pickup location only applies to pickup orders")
		}
		state.PickupLocation = location
		return nil
	})
}

// UpdateCustomerInfo stores the details unvalidated. A changed record sends a session past
// step 2 back there so the details are checked again before review.
func (s *service) UpdateCustomerInfo(ctx context.Context, ref SessionRef, info storage.CustomerInfo) (*View, error) {
	return s.mutate(ctx, ref, func(state *storage.OrderState) error {
		info = NormalizeCustomerInfo(info)
		if info == state.CustomerInfo {
			return nil
		}
		state.CustomerInfo = info
		rewind(state, StepCustomer)
		return nil
	})
}

// SelectPaymentMethod drops any stored card summary when the method changes. A card order
// sitting at review without a summary goes back to the payment step.
func (s *service) SelectPaymentMethod(ctx context.Context, ref SessionRef, method enums.PaymentMethod) (*View, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").WithDetails(map[string]any{"field": "payment_method"})
	}
	return s.mutate(ctx, ref, func(state *storage.OrderState) error {
		if state.PaymentMethod == method {
			return nil
		}
		state.PaymentMethod = method
		if err := storage.CheckoutPayment.Delete(ctx, s.store, ref.SessionID); err != nil {
			return err
		}
		if state.CurrentStep > StepPayment && method.RequiresCard() {
			state.CurrentStep = StepPayment
		}
		return nil
	})
}

// ApplyPromo replaces any previously applied code.
func (s *service) ApplyPromo(ctx context.Context, ref SessionRef, code string) (*View, error) {
	normalized := NormalizePromoCode(code)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgPromoRequired).WithDetails(map[string]any{"field": "promo_code"})
	}
	rule, ok := LookupPromotion(normalized)
	if !ok {
		s.metrics.PromoApplied(normalized, metrics.ResultRejected)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgPromoInvalid).WithDetails(map[string]any{"field": "promo_code"})
	}
	view, err := s.mutate(ctx, ref, func(state *storage.OrderState) error {
		state.PromoCode = rule.Code
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.PromoApplied(rule.Code, metrics.ResultSuccess)
	s.logg.Info(s.logg.WithFields(s.logContext(ctx, ref), map[string]any{
		"promo_code": rule.Code,
		"promo_kind": rule.Kind.String(),
	}), "checkout.promo_applied")
	return view, nil
}

func (s *service) SetTip(ctx context.Context, ref SessionRef, input TipInput) (*View, error) {
	amount, err := s.resolveTip(input)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, ref, func(state *storage.OrderState) error {
		state.Tip = amount
		return nil
	})
}

func (s *service) resolveTip(input TipInput) (decimal.Decimal, error) {
	invalid := pkgerrors.New(pkgerrors.CodeValidation, msgTipInvalid).WithDetails(map[string]any{"field": "tip"})
	switch {
	case input.Preset != nil && input.Custom != nil:
		return decimal.Zero, invalid
	case input.Preset != nil:
		if !s.rules.IsTipPreset(*input.Preset) {
			return decimal.Zero, invalid
		}
		return types.RoundCents(*input.Preset), nil
	case input.Custom != nil:
		amount, err := decimal.NewFromString(strings.TrimSpace(*input.Custom))
		if err != nil || amount.IsNegative() {
			return decimal.Zero, invalid
		}
		return types.RoundCents(amount), nil
	default:
		return decimal.Zero, invalid
	}
}

// Next validates the current step and advances. On failure the stored state is untouched.
func (s *service) Next(ctx context.Context, ref SessionRef, step int, input StepInput) (*View, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	ctx = s.logContext(ctx, ref)
	state, err := s.loadState(ctx, ref)
	if err != nil {
		return nil, err
	}
	if step != state.CurrentStep {
		return nil, stepConflict(state.CurrentStep, "step is not the current step")
	}
	if step >= StepReview {
		return nil, stepConflict(state.CurrentStep, "review is the last step")
	}

	var card *storage.CardInfo
	switch step {
	case StepOrderType:
		if input.PickupLocation != nil {
			state.PickupLocation = strings.TrimSpace(*input.PickupLocation)
		}
		if fields := ValidateOrderType(state, s.locations); len(fields) > 0 {
			return nil, s.rejectStep(ctx, step, msgPickupLocation, fields)
		}
	case StepCustomer:
		if input.CustomerInfo != nil {
			state.CustomerInfo = NormalizeCustomerInfo(*input.CustomerInfo)
		}
		if fields := ValidateCustomerInfo(state.OrderType, state.CustomerInfo); len(fields) > 0 {
			return nil, s.rejectStep(ctx, step, msgStepFields, fields)
		}
	case StepPayment:
		if state.PaymentMethod.RequiresCard() {
			form := CardForm{}
			if input.Card != nil {
				form = *input.Card
			}
			summary, fields := ValidateCard(form)
			if len(fields) > 0 {
				return nil, s.rejectStep(ctx, step, fields[0].Message, fields)
			}
			card = &summary
		}
	}

	if step == StepCustomer && input.SaveProfile {
		if err := storage.CustomerProfile.Write(ctx, s.store, ref.ClientID, state.CustomerInfo); err != nil {
			return nil, err
		}
	}
	if step == StepPayment {
		if card != nil {
			err = storage.CheckoutPayment.Write(ctx, s.store, ref.SessionID, *card)
		} else {
			err = storage.CheckoutPayment.Delete(ctx, s.store, ref.SessionID)
		}
		if err != nil {
			return nil, err
		}
	}

	state.CurrentStep = step + 1
	if err := s.saveState(ctx, ref, state); err != nil {
		return nil, err
	}
	s.metrics.StepTransition(StepName(step), metrics.ResultSuccess)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"step": step, "next_step": state.CurrentStep}), "checkout.step_advanced")
	return s.view(ctx, ref, state)
}

func (s *service) rejectStep(ctx context.Context, step int, message string, fields []FieldError) error {
	s.metrics.StepTransition(StepName(step), metrics.ResultRejected)
	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{"step": step, "invalid_fields": len(fields)}), "checkout.step_rejected")
	return stepValidationError(step, message, fields)
}

func (s *service) Back(ctx context.Context, ref SessionRef, step int) (*View, error) {
	return s.mutate(ctx, ref, func(state *storage.OrderState) error {
		if step != state.CurrentStep {
			return stepConflict(state.CurrentStep, "step is not the current step")
		}
		if step <= StepOrderType {
			return stepConflict(state.CurrentStep, "already at the first step")
		}
		state.CurrentStep = step - 1
		return nil
	})
}

// JumpToStep edits an earlier step from review. Returning to review requires Next again.
func (s *service) JumpToStep(ctx context.Context, ref SessionRef, step int) (*View, error) {
	if step < StepOrderType || step > StepPayment {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "step must be between 1 and 3").WithDetails(map[string]any{"field": "step"})
	}
	return s.mutate(ctx, ref, func(state *storage.OrderState) error {
		if state.CurrentStep != StepReview {
			return stepConflict(state.CurrentStep, "jumping is only allowed from review")
		}
		state.CurrentStep = step
		return nil
	})
}

func (s *service) Pricing(ctx context.Context, ref SessionRef) (types.Pricing, error) {
	view, err := s.Current(ctx, ref)
	if err != nil {
		return types.Pricing{}, err
	}
	return view.Pricing, nil
}

func (s *service) Review(ctx context.Context, ref SessionRef) (*Review, error) {
	view, err := s.Current(ctx, ref)
	if err != nil {
		return nil, err
	}
	if view.Review == nil {
		return nil, stepConflict(view.State.CurrentStep, "review is not available before step 4")
	}
	return view.Review, nil
}

func (s *service) mutate(ctx context.Context, ref SessionRef, fn func(state *storage.OrderState) error) (*View, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	ctx = s.logContext(ctx, ref)
	state, err := s.loadState(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := fn(&state); err != nil {
		return nil, err
	}
	if err := s.saveState(ctx, ref, state); err != nil {
		return nil, err
	}
	return s.view(ctx, ref, state)
}

func (s *service) loadState(ctx context.Context, ref SessionRef) (storage.OrderState, error) {
	state, ok, err := storage.CheckoutState.Read(ctx, s.store, ref.SessionID)
	if err != nil {
		return storage.OrderState{}, err
	}
	if !ok {
		return defaultState(s.rules), nil
	}
	return state, nil
}

func (s *service) saveState(ctx context.Context, ref SessionRef, state storage.OrderState) error {
	return storage.CheckoutState.Write(ctx, s.store, ref.SessionID, state)
}

func (s *service) loadCart(ctx context.Context, ref SessionRef) ([]storage.CartLine, error) {
	cart, _, err := storage.Cart.Read(ctx, s.store, ref.ClientID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		cart = []storage.CartLine{}
	}
	return cart, nil
}

func (s *service) loadCard(ctx context.Context, ref SessionRef) (*storage.CardInfo, error) {
	card, ok, err := storage.CheckoutPayment.Read(ctx, s.store, ref.SessionID)
	if err != nil || !ok {
		return nil, err
	}
	return &card, nil
}

func (s *service) view(ctx context.Context, ref SessionRef, state storage.OrderState) (*View, error) {
	cart, err := s.loadCart(ctx, ref)
	if err != nil {
		return nil, err
	}
	card, err := s.loadCard(ctx, ref)
	if err != nil {
		return nil, err
	}
	pricing := Calculate(state, cart, s.rules)
	view := &View{
		State:           state,
		Card:            card,
		Cart:            cart,
		Pricing:         pricing,
		EstimatedWindow: s.windows.For(state.OrderType),
	}
	if rule, ok := LookupPromotion(state.PromoCode); ok {
		view.PromoDescription = rule.Description
	}
	if state.CurrentStep == StepReview {
		view.Review = s.buildReview(state, card, cart, pricing)
	}
	return view, nil
}

func (s *service) buildReview(state storage.OrderState, card *storage.CardInfo, cart []storage.CartLine, pricing types.Pricing) *Review {
	info := state.CustomerInfo
	review := &Review{
		OrderType:       state.OrderType,
		PickupLocation:  state.PickupLocation,
		EstimatedWindow: s.windows.For(state.OrderType),
		Contact: ReviewContact{
			Name:  strings.TrimSpace(info.FirstName + " " + info.LastName),
			Email: info.Email,
			Phone: info.Phone,
		},
		Payment: ReviewPayment{
			Method: state.PaymentMethod,
			Label:  paymentLabel(state.PaymentMethod, state.OrderType, card),
		},
		Items:     cart,
		Pricing:   pricing,
		PromoCode: state.PromoCode,
	}
	if card != nil && state.PaymentMethod.RequiresCard() {
		review.Payment.LastFour = card.LastFour
	}
	if state.OrderType == enums.OrderTypeDelivery {
		review.Address = &ReviewAddress{
			Line1:        info.Address,
			Line2:        info.Apartment,
			City:         info.City,
			State:        info.State,
			ZipCode:      info.ZipCode,
			Instructions: info.DeliveryInstructions,
		}
	}
	return review
}

func (s *service) logContext(ctx context.Context, ref SessionRef) context.Context {
	ctx = s.logg.WithSessionID(ctx, ref.SessionID)
	return s.logg.WithClientID(ctx, ref.ClientID)
}

func (r SessionRef) validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id required")
	}
	if strings.TrimSpace(r.ClientID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	return nil
}

// rewind moves the session back to step when it has already moved past it.
func rewind(state *storage.OrderState, step int) {
	if state.CurrentStep > step {
		state.CurrentStep = step
	}
}

func stepConflict(current int, message string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).WithDetails(map[string]any{"current_step": current})
}

// prefill copies saved profile values into fields the session has not filled yet.
func prefill(info, profile storage.CustomerInfo) storage.CustomerInfo {
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = src
		}
	}
	fill(&info.FirstName, profile.FirstName)
	fill(&info.LastName, profile.LastName)
	fill(&info.Email, profile.Email)
	fill(&info.Phone, profile.Phone)
	fill(&info.Address, profile.Address)
	fill(&info.Apartment, profile.Apartment)
	fill(&info.City, profile.City)
	fill(&info.State, profile.State)
	fill(&info.ZipCode, profile.ZipCode)
	fill(&info.DeliveryInstructions, profile.DeliveryInstructions)
	return info
}

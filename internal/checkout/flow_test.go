package checkout

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chicagopizza/pizzeria-backend/internal/orders"
	"github.com/chicagopizza/pizzeria-backend/internal/storage"
	"github.com/chicagopizza/pizzeria-backend/pkg/config"
	"github.com/chicagopizza/pizzeria-backend/pkg/enums"
	pkgerrors "github.com/chicagopizza/pizzeria-backend/pkg/errors"
	"github.com/chicagopizza/pizzeria-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRef = SessionRef{SessionID: "sess-1", ClientID: "client-1"}

type memoryBackend struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{values: map[string]string{}}
}

func (m *memoryBackend) Load(_ context.Context, owner, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[owner+"/"+key]
	return v, ok, nil
}

func (m *memoryBackend) Save(_ context.Context, owner, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[owner+"/"+key] = value
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, owner, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, owner+"/"+key)
	return nil
}

func (m *memoryBackend) raw(owner, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[owner+"/"+key]
	return v, ok
}

type stubLocker struct {
	held map[string]bool
	err  error
}

func (l *stubLocker) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *stubLocker) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(l.held, key)
	}
	return nil
}

func (l *stubLocker) LockKey(parts ...string) string {
	return "lock:" + strings.Join(parts, ":")
}

type stubSubmitter struct {
	result    orders.Result
	err       error
	snapshots []orders.OrderSnapshot
	ctxErr    error
}

func (s *stubSubmitter) Submit(ctx context.Context, snapshot orders.OrderSnapshot) (orders.Result, error) {
	s.snapshots = append(s.snapshots, snapshot)
	s.ctxErr = ctx.Err()
	if s.err != nil {
		return orders.Result{}, s.err
	}
	return s.result, nil
}

func (s *stubSubmitter) Mode() string { return "stub" }

type recordedMetrics struct {
	transitions []string
	promos      []string
	orders      []string
}

func (m *recordedMetrics) StepTransition(step, result string) {
	m.transitions = append(m.transitions, step+":"+result)
}
func (m *recordedMetrics) PromoApplied(code, result string) {
	m.promos = append(m.promos, code+":"+result)
}
func (m *recordedMetrics) OrderSubmitted(orderType, result string) {
	m.orders = append(m.orders, orderType+":"+result)
}
func (m *recordedMetrics) ObserveSubmission(string, time.Duration) {}

type flowHarness struct {
	svc       Service
	store     *storage.Store
	session   *memoryBackend
	durable   *memoryBackend
	locker    *stubLocker
	submitter *stubSubmitter
	metrics   *recordedMetrics
	logs      *bytes.Buffer
}

func testCheckoutConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		TaxRate:               d("0.0825"),
		DeliveryFee:           d("3.99"),
		FreeDeliveryThreshold: d("25.00"),
		DefaultTip:            d("3.00"),
		TipPresets:            []decimal.Decimal{d("2.00"), d("3.00"), d("5.00")},
		DeliveryWindow:        "30-40 minutes",
		PickupWindow:          "15-20 minutes",
		SubmissionLockTTL:     time.Minute,
		PickupLocations:       []string{"downtown", "lincoln-park", "wicker-park"},
	}
}

func newFlowHarness(t *testing.T) *flowHarness {
	t.Helper()
	h := &flowHarness{
		session:   newMemoryBackend(),
		durable:   newMemoryBackend(),
		locker:    &stubLocker{held: map[string]bool{}},
		submitter: &stubSubmitter{result: orders.Result{OrderID: "ORD-ABC12345", EstimatedWindow: "30-40 minutes"}},
		metrics:   &recordedMetrics{},
		logs:      &bytes.Buffer{},
	}
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: h.logs})
	store, err := storage.NewStore(storage.StoreParams{Session: h.session, Durable: h.durable, Logger: logg})
	require.NoError(t, err)
	h.store = store

	svc, err := NewService(ServiceParams{
		Store:     store,
		Submitter: h.submitter,
		Locker:    h.locker,
		Logger:    logg,
		Metrics:   h.metrics,
		Config:    testCheckoutConfig(),
		Clock:     func() time.Time { return time.Date(2026, 10, 17, 19, 30, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *flowHarness) seedCart(t *testing.T, lines ...storage.CartLine) {
	t.Helper()
	require.NoError(t, storage.Cart.Write(context.Background(), h.store, testRef.ClientID, lines))
}

// advanceToReview walks a delivery card order through steps 1-3.
func (h *flowHarness) advanceToReview(t *testing.T) *View {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.Next(ctx, testRef, StepOrderType, StepInput{})
	require.NoError(t, err)
	info := validCustomer()
	_, err = h.svc.Next(ctx, testRef, StepCustomer, StepInput{CustomerInfo: &info})
	require.NoError(t, err)
	view, err := h.svc.Next(ctx, testRef, StepPayment, StepInput{Card: &CardForm{
		Number: "4111 1111 1111 1111", Expiry: "09/28", CVV: "123", Name: "Ada Lovelace",
	}})
	require.NoError(t, err)
	return view
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code())
	return typed
}

func TestEnterStartsWithDefaults(t *testing.T) {
	h := newFlowHarness(t)
	view, err := h.svc.Enter(context.Background(), testRef)
	require.NoError(t, err)

	assert.Equal(t, StepOrderType, view.State.CurrentStep)
	assert.Equal(t, enums.OrderTypeDelivery, view.State.OrderType)
	assert.Equal(t, enums.PaymentMethodCard, view.State.PaymentMethod)
	assert.True(t, view.State.Tip.Equal(d("3.00")))
	assert.Empty(t, view.Cart)
	assert.Nil(t, view.Card)
	assert.Equal(t, "30-40 minutes", view.EstimatedWindow)

	_, stored := h.session.raw(testRef.SessionID, storage.CheckoutState.Name)
	assert.True(t, stored, "entry persists the state")
}

func TestEnterRequiresSessionAndClient(t *testing.T) {
	h := newFlowHarness(t)
	_, err := h.svc.Enter(context.Background(), SessionRef{ClientID: "c"})
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = h.svc.Enter(context.Background(), SessionRef{SessionID: "s"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestPickupWithoutLocationStaysOnStepOne(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	_, err := h.svc.Enter(ctx, testRef)
	require.NoError(t, err)
	_, err = h.svc.SelectOrderType(ctx, testRef, enums.OrderTypePickup)
	require.NoError(t, err)

	_, err = h.svc.Next(ctx, testRef, StepOrderType, StepInput{})
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, msgPickupLocation, typed.Message())
	details := typed.Details().(map[string]any)
	assert.Equal(t, "pickup_location", details["focus"])

	view, err := h.svc.Current(ctx, testRef)
	require.NoError(t, err)
	assert.Equal(t, StepOrderType, view.State.CurrentStep)
	assert.Equal(t, []string{"order_type:rejected"}, h.metrics.transitions)

	location := "wicker-park"
	view, err = h.svc.Next(ctx, testRef, StepOrderType, StepInput{PickupLocation: &location})
	require.NoError(t, err)
	assert.Equal(t, StepCustomer, view.State.CurrentStep)
	assert.Equal(t, "wicker-park", view.State.PickupLocation)
	assert.Equal(t, "15-20 minutes", view.EstimatedWindow)
}

func TestSelectPickupLocation(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()

	_, err := h.svc.SelectPickupLocation(ctx, testRef, "downtown")
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = h.svc.SelectOrderType(ctx, testRef, enums.OrderTypePickup)
	require.NoError(t, err)
	_, err = h.svc.SelectPickupLocation(ctx, testRef, "o-hare")
	requireCode(t, err, pkgerrors.CodeValidation)

	view, err := h.svc.SelectPickupLocation(ctx, testRef, " downtown ")
	require.NoError(t, err)
	assert.Equal(t, "downtown", view.State.PickupLocation)

	view, err = h.svc.SelectOrderType(ctx, testRef, enums.OrderTypeDelivery)
	require.NoError(t, err)
	assert.Empty(t, view.State.PickupLocation)
}

func TestNextRejectsStepOtherThanCurrent(t *testing.T) {
	h := newFlowHarness(t)
	_, err := h.svc.Next(context.Background(), testRef, StepPayment, StepInput{})
	typed := requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Equal(t, map[string]any{"current_step": StepOrderType}, typed.Details())
}

func TestCustomerStepFailureLeavesStateUnchanged(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	_, err := h.svc.Next(ctx, testRef, StepOrderType, StepInput{})
	require.NoError(t, err)

	info := validCustomer()
	info.ZipCode = "ABCDE"
	_, err = h.svc.Next(ctx, testRef, StepCustomer, StepInput{CustomerInfo: &info, SaveProfile: true})
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, msgStepFields, typed.Message())
	details := typed.Details().(map[string]any)
	assert.Equal(t, "zip_code", details["focus"])

	view, err := h.svc.Current(ctx, testRef)
	require.NoError(t, err)
	assert.Equal(t, StepCustomer, view.State.CurrentStep)
	assert.Empty(t, view.State.CustomerInfo.ZipCode)
	_, saved := h.durable.raw(testRef.ClientID, storage.CustomerProfile.Name)
	assert.False(t, saved)
}

func TestSaveProfilePrefillsNextSession(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	_, err := h.svc.Next(ctx, testRef, StepOrderType, StepInput{})
	require.NoError(t, err)
	info := validCustomer()
	_, err = h.svc.Next(ctx, testRef, StepCustomer, StepInput{CustomerInfo: &info, SaveProfile: true})
	require.NoError(t, err)

	other := SessionRef{SessionID: "sess-2", ClientID: testRef.ClientID}
	view, err := h.svc.Enter(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, StepOrderType, view.State.CurrentStep)
	assert.Equal(t, "Ada", view.State.CustomerInfo.FirstName)
	assert.Equal(t, "60606", view.State.CustomerInfo.ZipCode)
}

func TestCardStepKeepsOnlySummary(t *testing.T) {
	h := newFlowHarness(t)
	h.seedCart(t, storage.CartLine{ID: "deep-dish", Name: "Deep Dish", Price: d("18.99"), Quantity: 2})
	view := h.advanceToReview(t)

	assert.Equal(t, StepReview, view.State.CurrentStep)
	require.NotNil(t, view.Card)
	assert.Equal(t, storage.CardInfo{LastFour: "1111", Brand: "Visa"}, *view.Card)
	require.NotNil(t, view.Review)
	assert.Equal(t, "Visa ending in 1111", view.Review.Payment.Label)
	assert.Equal(t, "Ada Lovelace", view.Review.Contact.Name)
	require.NotNil(t, view.Review.Address)
	assert.Equal(t, "60606", view.Review.Address.ZipCode)

	for key, value := range h.session.values {
		assert.NotContainsf(t, value, "4111111111111111", "raw card number stored under %s", key)
		assert.NotContainsf(t, value, "4111 1111", "raw card number stored under %s", key)
		assert.NotContainsf(t, value, "\"123\"", "cvv stored under %s", key)
	}
	assert.Equal(t, []string{"order_type:success", "customer_details:success", "payment:success"}, h.metrics.transitions)
}

func TestCashSkipsCardValidation(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	_, err := h.svc.SelectPaymentMethod(ctx, testRef, enums.PaymentMethodCash)
	require.NoError(t, err)
	_, err = h.svc.Next(ctx, testRef, StepOrderType, StepInput{})
	require.NoError(t, err)
	info := validCustomer()
	_, err = h.svc.Next(ctx, testRef, StepCustomer, StepInput{CustomerInfo: &info})
	require.NoError(t, err)
	view, err := h.svc.Next(ctx, testRef, StepPayment, StepInput{})
	require.NoError(t, err)
	assert.Equal(t, StepReview, view.State.CurrentStep)
	assert.Nil(t, view.Card)
	assert.Equal(t, "Cash on Delivery", view.Review.Payment.Label)
}

func TestCardStepRequiresCardForm(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	_, err := h.svc.Next(ctx, testRef, StepOrderType, StepInput{})
	require.NoError(t, err)
	info := validCustomer()
	_, err = h.svc.Next(ctx, testRef, StepCustomer, StepInput{CustomerInfo: &info})
	require.NoError(t, err)

	_, err = h.svc.Next(ctx, testRef, StepPayment, StepInput{Card: &CardForm{Number: "4111", Expiry: "09/28", CVV: "123", Name: "Ada"}})
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, msgCardNumber, typed.Message())
}

func TestReEntryRestoresProgressButNotCard(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	h.advanceToReview(t)

	view, err := h.svc.Enter(ctx, testRef)
	require.NoError(t, err)
	assert.Equal(t, StepPayment, view.State.CurrentStep, "card orders return to payment once the summary is gone")
	assert.Equal(t, enums.OrderTypeDelivery, view.State.OrderType)
	assert.Equal(t, "Lovelace", view.State.CustomerInfo.LastName)
	assert.Nil(t, view.Card)
	_, stored := h.session.raw(testRef.SessionID, storage.CheckoutPayment.Name)
	assert.False(t, stored)
}

func TestReEntryRestoresStepForNonCardOrders(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	_, err := h.svc.SelectOrderType(ctx, testRef, enums.OrderTypePickup)
	require.NoError(t, err)
	location := "downtown"
	_, err = h.svc.Next(ctx, testRef, StepOrderType, StepInput{PickupLocation: &location})
	require.NoError(t, err)
	info := validCustomer()
	_, err = h.svc.Next(ctx, testRef, StepCustomer, StepInput{CustomerInfo: &info})
	require.NoError(t, err)

	view, err := h.svc.Enter(ctx, testRef)
	require.NoError(t, err)
	assert.Equal(t, StepPayment, view.State.CurrentStep)
	assert.Equal(t, enums.OrderTypePickup, view.State.OrderType)
	assert.Equal(t, "downtown", view.State.PickupLocation)
	assert.Equal(t, "ada@example.com", view.State.CustomerInfo.Email)
}

func TestCorruptedStateFallsBackToDefaults(t *testing.T) {
	h := newFlowHarness(t)
	require.NoError(t, h.session.Save(context.Background(), testRef.SessionID, storage.CheckoutState.Name, "{not json"))

	view, err := h.svc.Enter(context.Background(), testRef)
	require.NoError(t, err)
	assert.Equal(t, StepOrderType, view.State.CurrentStep)
	assert.Contains(t, h.logs.String(), "storage.corrupted_value_discarded")
}

func TestBackAndJump(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()

	_, err := h.svc.Back(ctx, testRef, StepOrderType)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = h.svc.JumpToStep(ctx, testRef, StepCustomer)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	h.advanceToReview(t)
	_, err = h.svc.JumpToStep(ctx, testRef, StepReview)
	requireCode(t, err, pkgerrors.CodeValidation)

	view, err := h.svc.JumpToStep(ctx, testRef, StepCustomer)
	require.NoError(t, err)
	assert.Equal(t, StepCustomer, view.State.CurrentStep)
	assert.Nil(t, view.Review)

	view, err = h.svc.Back(ctx, testRef, StepCustomer)
	require.NoError(t, err)
	assert.Equal(t, StepOrderType, view.State.CurrentStep)
}

func TestApplyPromo(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	h.seedCart(t, storage.CartLine{ID: "large", Name: "Large Cheese", Price: d("25.00"), Quantity: 2})

	_, err := h.svc.ApplyPromo(ctx, testRef, "   ")
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, msgPromoRequired, typed.Message())

	_, err = h.svc.ApplyPromo(ctx, testRef, "pizza50")
	typed = requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, msgPromoInvalid, typed.Message())

	view, err := h.svc.ApplyPromo(ctx, testRef, "welcome10")
	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", view.State.PromoCode)
	assert.Equal(t, "10% off your order", view.PromoDescription)
	assert.True(t, view.Pricing.Discount.Equal(d("5.00")))

	view, err = h.svc.ApplyPromo(ctx, testRef, "PIZZA5")
	require.NoError(t, err)
	assert.Equal(t, "PIZZA5", view.State.PromoCode)
	assert.True(t, view.Pricing.Discount.Equal(d("5.00")))
	assert.Equal(t, []string{"PIZZA50:rejected", "WELCOME10:success", "PIZZA5:success"}, h.metrics.promos)
}

func TestSetTip(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()

	preset := d("5.00")
	view, err := h.svc.SetTip(ctx, testRef, TipInput{Preset: &preset})
	require.NoError(t, err)
	assert.True(t, view.State.Tip.Equal(d("5.00")))

	odd := d("4.00")
	_, err = h.svc.SetTip(ctx, testRef, TipInput{Preset: &odd})
	requireCode(t, err, pkgerrors.CodeValidation)

	custom := "7.255"
	view, err = h.svc.SetTip(ctx, testRef, TipInput{Custom: &custom})
	require.NoError(t, err)
	assert.True(t, view.State.Tip.Equal(d("7.26")))

	negative := "-1"
	_, err = h.svc.SetTip(ctx, testRef, TipInput{Custom: &negative})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.SetTip(ctx, testRef, TipInput{})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestSelectPaymentMethodAtReviewReturnsToPayment(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	h.advanceToReview(t)

	view, err := h.svc.SelectPaymentMethod(ctx, testRef, enums.PaymentMethodPayPal)
	require.NoError(t, err)
	assert.Equal(t, StepReview, view.State.CurrentStep)
	assert.Nil(t, view.Card)

	view, err = h.svc.SelectPaymentMethod(ctx, testRef, enums.PaymentMethodCard)
	require.NoError(t, err)
	assert.Equal(t, StepPayment, view.State.CurrentStep)
}

func TestPlaceOrderSuccessClearsEverything(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	h.seedCart(t, storage.CartLine{ID: "deep-dish", Name: "Deep Dish", Price: d("18.99"), Quantity: 2})
	_, err := h.svc.ApplyPromo(ctx, testRef, "FIRST20")
	require.NoError(t, err)
	h.advanceToReview(t)

	reqCtx, cancel := context.WithCancel(ctx)
	cancel()
	confirmation, err := h.svc.PlaceOrder(reqCtx, testRef, PlaceOrderInput{AcceptTerms: true, Notes: "  ring twice  "})
	require.NoError(t, err)
	assert.NoError(t, h.submitter.ctxErr, "submission must not observe caller cancellation")

	assert.Equal(t, "ORD-ABC12345", confirmation.OrderID)
	assert.Equal(t, "30-40 minutes", confirmation.EstimatedWindow)
	assert.Equal(t, "ada@example.com", confirmation.Email)
	assert.Equal(t, "On the Way", confirmation.FinalStep)

	require.Len(t, h.submitter.snapshots, 1)
	snap := h.submitter.snapshots[0]
	assert.Equal(t, "ring twice", snap.Notes)
	assert.Equal(t, "FIRST20", snap.PromoCode)
	require.NotNil(t, snap.Payment.Card)
	assert.Equal(t, "1111", snap.Payment.Card.LastFour)
	assert.True(t, snap.Pricing.Discount.Equal(d("7.60")))
	assert.Equal(t, time.Date(2026, 10, 17, 19, 30, 0, 0, time.UTC), snap.SubmittedAt)

	_, cartStored := h.durable.raw(testRef.ClientID, storage.Cart.Name)
	assert.False(t, cartStored)
	_, stateStored := h.session.raw(testRef.SessionID, storage.CheckoutState.Name)
	assert.False(t, stateStored)
	assert.Empty(t, h.locker.held)
	assert.Equal(t, []string{"delivery:success"}, h.metrics.orders)

	view, err := h.svc.Enter(ctx, testRef)
	require.NoError(t, err)
	assert.Equal(t, StepOrderType, view.State.CurrentStep)
	assert.Empty(t, view.Cart)
	assert.Empty(t, view.State.PromoCode)
}

func TestPlaceOrderPickupLabel(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	h.submitter.result = orders.Result{OrderID: "ORD-PICKUP01"}
	h.seedCart(t, storage.CartLine{ID: "slice", Name: "Slice", Price: d("4.50"), Quantity: 1})
	_, err := h.svc.SelectOrderType(ctx, testRef, enums.OrderTypePickup)
	require.NoError(t, err)
	_, err = h.svc.SelectPaymentMethod(ctx, testRef, enums.PaymentMethodCash)
	require.NoError(t, err)
	location := "lincoln-park"
	_, err = h.svc.Next(ctx, testRef, StepOrderType, StepInput{PickupLocation: &location})
	require.NoError(t, err)
	info := validCustomer()
	_, err = h.svc.Next(ctx, testRef, StepCustomer, StepInput{CustomerInfo: &info})
	require.NoError(t, err)
	_, err = h.svc.Next(ctx, testRef, StepPayment, StepInput{})
	require.NoError(t, err)

	confirmation, err := h.svc.PlaceOrder(ctx, testRef, PlaceOrderInput{AcceptTerms: true})
	require.NoError(t, err)
	assert.Equal(t, "Ready for Pickup", confirmation.FinalStep)
	assert.Equal(t, "15-20 minutes", confirmation.EstimatedWindow)
	assert.True(t, confirmation.Pricing.Tip.IsZero())
	assert.True(t, confirmation.Pricing.DeliveryFee.IsZero())
	assert.Nil(t, h.submitter.snapshots[0].Payment.Card)
}

func TestPlaceOrderFailureKeepsState(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	h.seedCart(t, storage.CartLine{ID: "deep-dish", Name: "Deep Dish", Price: d("18.99"), Quantity: 1})
	h.advanceToReview(t)
	h.submitter.err = &orders.SubmissionError{Reason: enums.SubmissionUnavailable, Err: errors.New("kitchen offline")}

	_, err := h.svc.PlaceOrder(ctx, testRef, PlaceOrderInput{AcceptTerms: true})
	typed := requireCode(t, err, pkgerrors.CodeDependency)
	assert.Equal(t, msgSubmitFailed, typed.PublicMessage())
	assert.True(t, pkgerrors.MetadataFor(typed.Code()).Retryable)

	view, err := h.svc.Current(ctx, testRef)
	require.NoError(t, err)
	assert.Equal(t, StepReview, view.State.CurrentStep)
	assert.Len(t, view.Cart, 1)
	assert.NotNil(t, view.Card)
	assert.Empty(t, h.locker.held, "lock is released so the customer can retry")
	assert.Equal(t, []string{"delivery:failure"}, h.metrics.orders)

	h.submitter.err = nil
	_, err = h.svc.PlaceOrder(ctx, testRef, PlaceOrderInput{AcceptTerms: true})
	require.NoError(t, err)
}

func TestPlaceOrderGuards(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()

	_, err := h.svc.PlaceOrder(ctx, testRef, PlaceOrderInput{})
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, msgAcceptTerms, typed.Message())

	_, err = h.svc.PlaceOrder(ctx, testRef, PlaceOrderInput{AcceptTerms: true})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	h.advanceToReview(t)
	_, err = h.svc.PlaceOrder(ctx, testRef, PlaceOrderInput{AcceptTerms: true})
	typed = requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, msgEmptyCart, typed.Message())

	h.seedCart(t, storage.CartLine{ID: "slice", Name: "Slice", Price: d("4.50"), Quantity: 1})
	h.locker.held[h.locker.LockKey("submit", testRef.SessionID)] = true
	_, err = h.svc.PlaceOrder(ctx, testRef, PlaceOrderInput{AcceptTerms: true})
	requireCode(t, err, pkgerrors.CodeConflict)
	assert.Empty(t, h.submitter.snapshots)
}

func TestReviewOnlyAtStepFour(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	_, err := h.svc.Review(ctx, testRef)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	h.advanceToReview(t)
	review, err := h.svc.Review(ctx, testRef)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderTypeDelivery, review.OrderType)
	assert.Equal(t, "30-40 minutes", review.EstimatedWindow)
}

func TestChangesAfterReviewRewindAndBlockPlacement(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	h.seedCart(t, storage.CartLine{ID: "deep-dish", Name: "Deep Dish", Price: d("18.99"), Quantity: 1})
	h.advanceToReview(t)

	view, err := h.svc.SelectOrderType(ctx, testRef, enums.OrderTypePickup)
	require.NoError(t, err)
	assert.Equal(t, StepOrderType, view.State.CurrentStep)
	assert.Empty(t, view.State.PickupLocation)

	_, err = h.svc.UpdateCustomerInfo(ctx, testRef, storage.CustomerInfo{})
	require.NoError(t, err)

	_, err = h.svc.PlaceOrder(ctx, testRef, PlaceOrderInput{AcceptTerms: true})
	requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Empty(t, h.submitter.snapshots)
	assert.Empty(t, h.locker.held)
}

func TestUpdateCustomerInfoAtReviewReturnsToCustomerStep(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	h.advanceToReview(t)

	view, err := h.svc.UpdateCustomerInfo(ctx, testRef, validCustomer())
	require.NoError(t, err)
	assert.Equal(t, StepReview, view.State.CurrentStep, "an unchanged record keeps the session at review")

	info := validCustomer()
	info.Email = "not-an-email"
	view, err = h.svc.UpdateCustomerInfo(ctx, testRef, info)
	require.NoError(t, err)
	assert.Equal(t, StepCustomer, view.State.CurrentStep)

	view, err = h.svc.SelectOrderType(ctx, testRef, enums.OrderTypeDelivery)
	require.NoError(t, err)
	assert.Equal(t, StepCustomer, view.State.CurrentStep, "selecting the current order type changes nothing")
}

func TestPlaceOrderRechecksStoredStepData(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*storage.OrderState)
		wantStep int
	}{
		{
			name: "pickup without location",
			mutate: func(s *storage.OrderState) {
				s.OrderType = enums.OrderTypePickup
				s.PickupLocation = ""
			},
			wantStep: StepOrderType,
		},
		{
			name:     "blank customer",
			mutate:   func(s *storage.OrderState) { s.CustomerInfo = storage.CustomerInfo{} },
			wantStep: StepCustomer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newFlowHarness(t)
			ctx := context.Background()
			h.seedCart(t, storage.CartLine{ID: "slice", Name: "Slice", Price: d("4.50"), Quantity: 1})
			h.advanceToReview(t)

			state, ok, err := storage.CheckoutState.Read(ctx, h.store, testRef.SessionID)
			require.NoError(t, err)
			require.True(t, ok)
			tt.mutate(&state)
			require.NoError(t, storage.CheckoutState.Write(ctx, h.store, testRef.SessionID, state))

			_, err = h.svc.PlaceOrder(ctx, testRef, PlaceOrderInput{AcceptTerms: true})
			typed := requireCode(t, err, pkgerrors.CodeValidation)
			details, ok := typed.Details().(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.wantStep, details["step"])
			assert.Empty(t, h.submitter.snapshots)
			assert.Empty(t, h.locker.held)
		})
	}
}

// interleavingLocker runs before once, just ahead of the first SetNX.
type interleavingLocker struct {
	*stubLocker
	before func()
}

func (l *interleavingLocker) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if run := l.before; run != nil {
		l.before = nil
		run()
	}
	return l.stubLocker.SetNX(ctx, key, value, ttl)
}

func TestPlaceOrderReadsStateUnderLock(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()
	h.seedCart(t, storage.CartLine{ID: "deep-dish", Name: "Deep Dish", Price: d("18.99"), Quantity: 1})
	h.advanceToReview(t)

	locker := &interleavingLocker{stubLocker: h.locker}
	svc, err := NewService(ServiceParams{
		Store:     h.store,
		Submitter: h.submitter,
		Locker:    locker,
		Logger:    logger.New(logger.Options{ServiceName: "checkout-test", Output: &bytes.Buffer{}}),
		Metrics:   h.metrics,
		Config:    testCheckoutConfig(),
	})
	require.NoError(t, err)

	var firstErr error
	locker.before = func() {
		_, firstErr = svc.PlaceOrder(ctx, testRef, PlaceOrderInput{AcceptTerms: true})
	}

	_, err = svc.PlaceOrder(ctx, testRef, PlaceOrderInput{AcceptTerms: true})
	require.NoError(t, firstErr)
	requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Len(t, h.submitter.snapshots, 1)
	assert.Empty(t, h.locker.held)
}

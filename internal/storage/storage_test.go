package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chicagopizza/pizzeria-backend/pkg/enums"
	pkgerrors "github.com/chicagopizza/pizzeria-backend/pkg/errors"
	"github.com/chicagopizza/pizzeria-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBackend struct {
	values  map[string]string
	deletes int
	err     error
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{values: map[string]string{}}
}

func (m *memoryBackend) Load(_ context.Context, owner, key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[owner+"/"+key]
	return v, ok, nil
}

func (m *memoryBackend) Save(_ context.Context, owner, key, value string) error {
	if m.err != nil {
		return m.err
	}
	m.values[owner+"/"+key] = value
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, owner, key string) error {
	m.deletes++
	delete(m.values, owner+"/"+key)
	return nil
}

type corruptionCounter struct {
	keys []string
}

func (c *corruptionCounter) CorruptedValue(key string) { c.keys = append(c.keys, key) }

func newTestStore(t *testing.T) (*Store, *memoryBackend, *memoryBackend, *bytes.Buffer, *corruptionCounter) {
	t.Helper()
	buf := &bytes.Buffer{}
	session, durable := newMemoryBackend(), newMemoryBackend()
	counter := &corruptionCounter{}
	store, err := NewStore(StoreParams{
		Session: session,
		Durable: durable,
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: buf}),
		Metrics: counter,
	})
	require.NoError(t, err)
	return store, session, durable, buf, counter
}

func TestKeyRoundTripAndScopes(t *testing.T) {
	store, session, durable, _, _ := newTestStore(t)
	ctx := context.Background()

	state := OrderState{
		CurrentStep:   2,
		OrderType:     enums.OrderTypePickup,
		PaymentMethod: enums.PaymentMethodCash,
		Tip:           decimal.RequireFromString("3.00"),
	}
	require.NoError(t, CheckoutState.Write(ctx, store, "sess-1", state))
	assert.Contains(t, session.values["sess-1/checkout_state"], `"v":1`)
	assert.Empty(t, durable.values)

	got, ok, err := CheckoutState.Read(ctx, store, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.CurrentStep)
	assert.Equal(t, enums.OrderTypePickup, got.OrderType)
	assert.True(t, got.Tip.Equal(decimal.NewFromInt(3)))

	lines := []CartLine{{ID: "margherita", Name: "Margherita", Price: decimal.RequireFromString("12.99"), Quantity: 2}}
	require.NoError(t, Cart.Write(ctx, store, "client-1", lines))
	assert.Contains(t, durable.values, "client-1/cart")
}

func TestReadMissingIsAbsent(t *testing.T) {
	store, _, _, _, _ := newTestStore(t)
	_, ok, err := CustomerProfile.Read(context.Background(), store, "client-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCorruptedValuesAreDiscarded(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "malformed json", raw: `{"v":1,"data":`},
		{name: "legacy unversioned", raw: `{"currentStep":2}`},
		{name: "wrong version", raw: `{"v":7,"data":{}}`},
		{name: "step out of range", raw: `{"v":1,"data":{"current_step":9,"order_type":"delivery","payment_method":"card","tip":"3"}}`},
		{name: "unknown order type", raw: `{"v":1,"data":{"current_step":1,"order_type":"drone","payment_method":"card","tip":"3"}}`},
		{name: "negative tip", raw: `{"v":1,"data":{"current_step":1,"order_type":"delivery","payment_method":"card","tip":"-1"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, session, _, buf, counter := newTestStore(t)
			session.values["sess-1/checkout_state"] = tt.raw

			_, ok, err := CheckoutState.Read(context.Background(), store, "sess-1")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.NotContains(t, session.values, "sess-1/checkout_state")
			assert.Equal(t, []string{"checkout_state"}, counter.keys)
			assert.Contains(t, buf.String(), "storage.corrupted_value_discarded")
		})
	}
}

func TestCorruptedCartLineIsDiscarded(t *testing.T) {
	store, _, durable, _, _ := newTestStore(t)
	durable.values["client-1/cart"] = `{"v":1,"data":[{"id":"x","name":"X","price":"5","quantity":0}]}`

	lines, ok, err := Cart.Read(context.Background(), store, "client-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, lines)
}

func TestCardInfoValidation(t *testing.T) {
	store, session, _, _, _ := newTestStore(t)
	ctx := context.Background()
	session.values["sess-1/checkout_payment"] = `{"v":1,"data":{"last_four":"12a4","brand":"Visa"}}`

	_, ok, err := CheckoutPayment.Read(ctx, store, "sess-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, CheckoutPayment.Write(ctx, store, "sess-1", CardInfo{LastFour: "1111", Brand: "Visa"}))
	card, ok, err := CheckoutPayment.Read(ctx, store, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1111", card.LastFour)

	require.NoError(t, CheckoutPayment.Delete(ctx, store, "sess-1"))
	_, ok, err = CheckoutPayment.Read(ctx, store, "sess-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackendFailuresAreDependencyErrors(t *testing.T) {
	store, session, _, _, _ := newTestStore(t)
	session.err = errors.New("redis down")

	_, _, err := CheckoutState.Read(context.Background(), store, "sess-1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	err = CheckoutState.Write(context.Background(), store, "sess-1", OrderState{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestNewStoreRequiresDependencies(t *testing.T) {
	_, err := NewStore(StoreParams{Durable: newMemoryBackend(), Logger: logger.New(logger.Options{})})
	require.Error(t, err)
	_, err = NewStore(StoreParams{Session: newMemoryBackend(), Logger: logger.New(logger.Options{})})
	require.Error(t, err)
	_, err = NewStore(StoreParams{Session: newMemoryBackend(), Durable: newMemoryBackend()})
	require.Error(t, err)
}

func TestCustomizationsEqual(t *testing.T) {
	a := &Customizations{Size: "large", Toppings: []string{"basil", "garlic"}}
	b := &Customizations{Size: "large", Toppings: []string{"basil", "garlic"}}
	c := &Customizations{Size: "large", Toppings: []string{"garlic", "basil"}}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))

	var none *Customizations
	assert.True(t, none.Equal(&Customizations{}))
	assert.True(t, none.Equal(nil))
}

func TestLineTotal(t *testing.T) {
	line := CartLine{Price: decimal.RequireFromString("12.99"), Quantity: 3, AddedAt: time.Now()}
	assert.True(t, line.LineTotal().Equal(decimal.RequireFromString("38.97")))
}

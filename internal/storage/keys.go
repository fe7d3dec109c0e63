package storage

import (
	"context"
	"encoding/json"
	"fmt"

	pkgerrors "github.com/chicagopizza/pizzeria-backend/pkg/errors"
)

// Scope selects the backend a key lives in.
type Scope string

const (
	// ScopeSession values are owned by a checkout session id and expire.
	ScopeSession Scope = "session"
	// ScopeDurable values are owned by a client id and survive sessions.
	ScopeDurable Scope = "durable"
)

// Key binds a storage name to its scope, schema version and validation.
type Key[T any] struct {
	Name     string
	Scope    Scope
	Version  int
	validate func(T) error
}

var (
	Cart            = Key[[]CartLine]{Name: "cart", Scope: ScopeDurable, Version: 1, validate: validateCart}
	CustomerProfile = Key[CustomerInfo]{Name: "customer_profile", Scope: ScopeDurable, Version: 1}
	CheckoutState   = Key[OrderState]{Name: "checkout_state", Scope: ScopeSession, Version: 1, validate: validateOrderState}
	CheckoutPayment = Key[CardInfo]{Name: "checkout_payment", Scope: ScopeSession, Version: 1, validate: validateCardInfo}
)

type envelope struct {
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

// Read loads the value for owner. ok is false when nothing usable is stored; corrupted
// values are logged, deleted and reported as absent.
func (k Key[T]) Read(ctx context.Context, s *Store, owner string) (value T, ok bool, err error) {
	raw, found, err := s.backend(k.Scope).Load(ctx, owner, k.Name)
	if err != nil {
		return value, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("load %s", k.Name))
	}
	if !found {
		return value, false, nil
	}

	decoded, reason := k.decode(raw)
	if reason != nil {
		s.discard(ctx, k.Scope, owner, k.Name, reason)
		var zero T
		return zero, false, nil
	}
	return decoded, true, nil
}

func (k Key[T]) decode(raw string) (T, error) {
	var value T
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return value, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Version != k.Version {
		return value, fmt.Errorf("unsupported version %d", env.Version)
	}
	if len(env.Data) == 0 {
		return value, fmt.Errorf("missing data")
	}
	if err := json.Unmarshal(env.Data, &value); err != nil {
		return value, fmt.Errorf("malformed data: %w", err)
	}
	if k.validate != nil {
		if err := k.validate(value); err != nil {
			return value, fmt.Errorf("invalid data: %w", err)
		}
	}
	return value, nil
}

// Write replaces the stored value for owner.
func (k Key[T]) Write(ctx context.Context, s *Store, owner string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("encode %s", k.Name))
	}
	payload, err := json.Marshal(envelope{Version: k.Version, Data: data})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("encode %s envelope", k.Name))
	}
	if err := s.backend(k.Scope).Save(ctx, owner, k.Name, string(payload)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("save %s", k.Name))
	}
	return nil
}

// Delete removes the stored value for owner. Deleting a missing value is not an error.
func (k Key[T]) Delete(ctx context.Context, s *Store, owner string) error {
	if err := s.backend(k.Scope).Delete(ctx, owner, k.Name); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("delete %s", k.Name))
	}
	return nil
}

package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chicagopizza/pizzeria-backend/internal/storage"
	pkgerrors "github.com/chicagopizza/pizzeria-backend/pkg/errors"
	"github.com/chicagopizza/pizzeria-backend/pkg/types"
	"github.com/shopspring/decimal"
)

// Service owns the durable cart of a client.
type Service interface {
	Get(ctx context.Context, clientID string) (*CartView, error)
	Add(ctx context.Context, clientID string, input AddItemInput) (*CartView, error)
	UpdateQuantity(ctx context.Context, clientID string, index, quantity int) (*CartView, error)
	Remove(ctx context.Context, clientID string, index int) (*CartView, error)
	Clear(ctx context.Context, clientID string) error
	Totals(ctx context.Context, clientID string) (Totals, error)
}

type service struct {
	store *storage.Store
	now   func() time.Time
}

// NewService builds a cart service over the shared storage.
func NewService(store *storage.Store, clock func() time.Time) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &service{store: store, now: clock}, nil
}

func (s *service) Get(ctx context.Context, clientID string) (*CartView, error) {
	lines, err := s.load(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return newView(lines), nil
}

// Add merges into an existing line with the same id and customizations, else appends.
func (s *service) Add(ctx context.Context, clientID string, input AddItemInput) (*CartView, error) {
	input.ID = strings.TrimSpace(input.ID)
	input.Name = strings.TrimSpace(input.Name)
	if input.ID == "" || input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id and name are required")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item price must not be negative").WithDetails(map[string]any{"field": "price"})
	}
	return s.update(ctx, clientID, func(lines []storage.CartLine) ([]storage.CartLine, error) {
		for i := range lines {
			if lines[i].ID == input.ID && lines[i].Customizations.Equal(input.Customizations) {
				lines[i].Quantity++
				return lines, nil
			}
		}
		return append(lines, storage.CartLine{
			ID:             input.ID,
			Name:           input.Name,
			Price:          types.RoundCents(input.Price),
			Quantity:       1,
			Image:          input.Image,
			Customizations: input.Customizations,
			AddedAt:        s.now().UTC(),
		}), nil
	})
}

// UpdateQuantity sets the quantity of a line; zero or less removes it.
func (s *service) UpdateQuantity(ctx context.Context, clientID string, index, quantity int) (*CartView, error) {
	return s.update(ctx, clientID, func(lines []storage.CartLine) ([]storage.CartLine, error) {
		if err := checkIndex(lines, index); err != nil {
			return nil, err
		}
		if quantity <= 0 {
			return append(lines[:index], lines[index+1:]...), nil
		}
		lines[index].Quantity = quantity
		return lines, nil
	})
}

func (s *service) Remove(ctx context.Context, clientID string, index int) (*CartView, error) {
	return s.UpdateQuantity(ctx, clientID, index, 0)
}

func (s *service) Clear(ctx context.Context, clientID string) error {
	if err := requireClient(clientID); err != nil {
		return err
	}
	return storage.Cart.Delete(ctx, s.store, clientID)
}

func (s *service) Totals(ctx context.Context, clientID string) (Totals, error) {
	lines, err := s.load(ctx, clientID)
	if err != nil {
		return Totals{}, err
	}
	return ComputeTotals(lines), nil
}

func (s *service) update(ctx context.Context, clientID string, fn func([]storage.CartLine) ([]storage.CartLine, error)) (*CartView, error) {
	lines, err := s.load(ctx, clientID)
	if err != nil {
		return nil, err
	}
	lines, err = fn(lines)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		err = storage.Cart.Delete(ctx, s.store, clientID)
	} else {
		err = storage.Cart.Write(ctx, s.store, clientID, lines)
	}
	if err != nil {
		return nil, err
	}
	return newView(lines), nil
}

func (s *service) load(ctx context.Context, clientID string) ([]storage.CartLine, error) {
	if err := requireClient(clientID); err != nil {
		return nil, err
	}
	lines, _, err := storage.Cart.Read(ctx, s.store, clientID)
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func requireClient(clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	return nil
}

func checkIndex(lines []storage.CartLine, index int) error {
	if index < 0 || index >= len(lines) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found").WithDetails(map[string]any{"index": index})
	}
	return nil
}

func newView(lines []storage.CartLine) *CartView {
	if lines == nil {
		lines = []storage.CartLine{}
	}
	return &CartView{Items: lines, Totals: ComputeTotals(lines)}
}

// ComputeTotals sums price × quantity and the item count.
func ComputeTotals(lines []storage.CartLine) Totals {
	subtotal := decimal.Zero
	count := 0
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal())
		count += line.Quantity
	}
	return Totals{Subtotal: types.NewMoney(subtotal), ItemCount: count}
}

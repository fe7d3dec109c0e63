package storage

import (
	"context"
	"fmt"

	"github.com/chicagopizza/pizzeria-backend/pkg/logger"
)

// Backend persists raw envelope strings per owner and key.
type Backend interface {
	Load(ctx context.Context, owner, key string) (string, bool, error)
	Save(ctx context.Context, owner, key, value string) error
	Delete(ctx context.Context, owner, key string) error
}

type corruptionRecorder interface {
	CorruptedValue(key string)
}

// StoreParams wires the two backends.
type StoreParams struct {
	Session Backend
	Durable Backend
	Logger  *logger.Logger
	Metrics corruptionRecorder
}

// Store routes typed keys to the session or durable backend.
type Store struct {
	session Backend
	durable Backend
	logg    *logger.Logger
	metrics corruptionRecorder
}

func NewStore(params StoreParams) (*Store, error) {
	if params.Session == nil {
		return nil, fmt.Errorf("session backend required")
	}
	if params.Durable == nil {
		return nil, fmt.Errorf("durable backend required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Store{
		session: params.Session,
		durable: params.Durable,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

func (s *Store) backend(scope Scope) Backend {
	if scope == ScopeSession {
		return s.session
	}
	return s.durable
}

func (s *Store) discard(ctx context.Context, scope Scope, owner, key string, reason error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"storage_key":   key,
		"storage_scope": string(scope),
		"reason":        reason.Error(),
	})
	s.logg.Warn(logCtx, "storage.corrupted_value_discarded")
	if s.metrics != nil {
		s.metrics.CorruptedValue(key)
	}
	if err := s.backend(scope).Delete(ctx, owner, key); err != nil {
		s.logg.Error(logCtx, "storage.discard_failed", err)
	}
}

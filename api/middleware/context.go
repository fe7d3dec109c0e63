package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/chicagopizza/pizzeria-backend/api/responses"
	pkgerrors "github.com/chicagopizza/pizzeria-backend/pkg/errors"
	"github.com/chicagopizza/pizzeria-backend/pkg/logger"
)

const (
	ClientIDHeader  = "X-Client-Id"
	SessionIDHeader = "X-Checkout-Session"

	maxIdentifierLength = 128
)

type contextKey string

const (
	ctxClientID  contextKey = "client_id"
	ctxSessionID contextKey = "session_id"
)

func ClientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxClientID).(string); ok {
		return v
	}
	return ""
}

func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSessionID).(string); ok {
		return v
	}
	return ""
}

// WithClientID injects the durable owner identifier into the context.
func WithClientID(ctx context.Context, clientID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxClientID, clientID)
}

// WithSessionID injects the checkout session identifier into the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxSessionID, sessionID)
}

// RequireClient rejects requests without a usable X-Client-Id header.
func RequireClient(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, err := identifierHeader(r, ClientIDHeader)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ctx := WithClientID(r.Context(), clientID)
			if logg != nil {
				ctx = logg.WithClientID(ctx, clientID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession rejects requests without a usable X-Checkout-Session header.
func RequireSession(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, err := identifierHeader(r, SessionIDHeader)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ctx := WithSessionID(r.Context(), sessionID)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, sessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// identifierHeader reads an opaque id. Colons are refused because ids are embedded in redis keys.
func identifierHeader(r *http.Request, header string) (string, error) {
	value := strings.TrimSpace(r.Header.Get(header))
	switch {
	case value == "":
		return "", pkgerrors.New(pkgerrors.CodeValidation, header+" header required").
			WithDetails(map[string]any{"header": header})
	case len(value) > maxIdentifierLength, strings.ContainsAny(value, ": \t"):
		return "", pkgerrors.New(pkgerrors.CodeValidation, header+" header is invalid").
			WithDetails(map[string]any{"header": header})
	}
	return value, nil
}

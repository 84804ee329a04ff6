package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tracevec/backend/internal/models"
	"github.com/tracevec/backend/internal/scope"
)

type contextKey string

const ctxAccountKey contextKey = "account"

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// TokenValidator is implemented by the auth service.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, models.Role, error)
}

// AccountLookup resolves the authenticated account record.
type AccountLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// RequireAuth authenticates the Bearer JWT and sets the account into the
// request context. Missing/invalid tokens, unknown accounts and disabled
// accounts all yield 401.
func RequireAuth(tokens TokenValidator, accounts AccountLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc := authenticate(r, tokens, accounts)
			if acc == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), acc)))
		})
	}
}

// OptionalAuth sets the account into context when a valid token is
// present and passes the request through either way. Used on the open
// export/logging endpoints where guests are first-class.
func OptionalAuth(tokens TokenValidator, accounts AccountLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if acc := authenticate(r, tokens, accounts); acc != nil {
				r = r.WithContext(WithAccount(r.Context(), acc))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin gates the admin API on the actor's role. Must run after
// RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc := AccountFromCtx(r.Context())
		if acc == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !scope.CanUseAdminAPI(acc.Role) {
			writeError(w, http.StatusForbidden, "admin permission required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func authenticate(r *http.Request, tokens TokenValidator, accounts AccountLookup) *models.Account {
	raw := extractBearer(r)
	if raw == "" {
		return nil
	}
	id, _, err := tokens.ValidateToken(r.Context(), raw)
	if err != nil {
		return nil
	}
	acc, err := accounts.GetByID(r.Context(), id)
	if err != nil || acc == nil || !acc.IsActive {
		return nil
	}
	return acc
}

// AccountFromCtx returns the authenticated account or nil.
func AccountFromCtx(ctx context.Context) *models.Account {
	acc, _ := ctx.Value(ctxAccountKey).(*models.Account)
	return acc
}

// WithAccount returns a context carrying the given account.
func WithAccount(ctx context.Context, acc *models.Account) context.Context {
	return context.WithValue(ctx, ctxAccountKey, acc)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marmos91/miniserver/internal/logger"
	"github.com/marmos91/miniserver/pkg/models"
)

type contextKey string

const userContextKey contextKey = "user"

// UserFromContext returns the authenticated user stored by BearerAuth, or nil.
func UserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(userContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// BearerAuth rejects requests without a valid bearer token with 401 and
// stores the resolved user in the request context otherwise.
func BearerAuth(svc *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer, err := ExtractBearer(r.Header.Get("Authorization"))
			if err != nil {
				unauthorized(w, err)
				return
			}

			user, err := svc.Authenticate(r.Context(), bearer)
			if err != nil {
				if !errors.Is(err, ErrInvalidToken) && !errors.Is(err, ErrExpiredToken) {
					logger.ErrorCtx(r.Context(), "Token lookup failed", logger.Err(err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				unauthorized(w, err)
				return
			}

			ctx := WithUser(r.Context(), user)
			if lc := logger.FromContext(ctx); lc != nil {
				ctx = logger.WithContext(ctx, lc.WithUser(user.ID))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="miniserver"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": http.StatusUnauthorized,
		"error":  err.Error(),
	})
}

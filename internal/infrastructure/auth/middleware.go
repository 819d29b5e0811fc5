package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/EricDistort/QuberX/internal/infrastructure/redis"
)

type contextKey int

const (
	accountIDKey contextKey = iota
	accountNumberKey
)

func WithAccount(ctx context.Context, accountID int64, accountNumber string) context.Context {
	ctx = context.WithValue(ctx, accountIDKey, accountID)
	return context.WithValue(ctx, accountNumberKey, accountNumber)
}

func AccountIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(accountIDKey).(int64)
	return id, ok
}

func AccountNumberFromContext(ctx context.Context) (string, bool) {
	n, ok := ctx.Value(accountNumberKey).(string)
	return n, ok
}

// AuthMiddleware accepts a bearer token only if it is the one currently
// stored for the account, so logout revokes it.
func AuthMiddleware(sessions redis.RedisClient, tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "authorization header missing", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			tokenStr := parts[1]
			claims, err := tokens.ParseJWT(tokenStr)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			storedToken, err := sessions.Get(r.Context(), SessionKey(claims.AccountID))
			if err != nil || storedToken != tokenStr {
				slog.Warn("invalid or revoked token", "account_id", claims.AccountID, "error", err)
				http.Error(w, "invalid or revoked token", http.StatusUnauthorized)
				return
			}

			ctx := WithAccount(r.Context(), claims.AccountID, claims.AccountNumber)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware guards back-office routes with a shared token in the
// X-Admin-Token header. An empty configured token disables the routes.
func AdminMiddleware(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Admin-Token")
			if adminToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(adminToken)) != 1 {
				slog.Warn("admin access denied", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

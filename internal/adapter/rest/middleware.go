package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aiescrow/escrow-backend/internal/domain"
	"github.com/aiescrow/escrow-backend/internal/usecase/wallet"
)

type ctxKey int

const userCtxKey ctxKey = iota

// userFrom returns the authenticated user placed in the context by Auth.
func userFrom(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userCtxKey).(*domain.User)
	return user
}

// Chain applies multiple middleware in order (first to last)
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// authClaims matches the token shape issued by the auth service: the trusted
// user id sits under the "user" claim.
type authClaims struct {
	User struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
	jwt.RegisteredClaims
}

// Auth authenticates every request from its bearer token and provisions the
// user's wallet on first contact. The ledger performs no credential checks
// of its own; it trusts the user id the token carries.
func Auth(secret string, wallets *wallet.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeMessage(w, http.StatusUnauthorized, "missing authorization token")
				return
			}

			claims := &authClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !parsed.Valid {
				writeMessage(w, http.StatusUnauthorized, "invalid authorization token")
				return
			}

			userID, err := uuid.Parse(claims.User.ID)
			if err != nil {
				writeMessage(w, http.StatusUnauthorized, "invalid user id in token")
				return
			}

			user, err := wallets.EnsureUser(r.Context(), userID, claims.User.Name)
			if err != nil {
				slog.Error("failed to provision wallet", "error", err, "user_id", userID)
				writeMessage(w, http.StatusInternalServerError, "failed to load wallet")
				return
			}

			ctx := context.WithValue(r.Context(), userCtxKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// RequestLogging logs HTTP requests with method, path, status, and duration
func RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

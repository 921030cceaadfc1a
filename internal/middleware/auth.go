package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	UserIDKey      contextKey = "user_id"
	UserRoleKey    contextKey = "user_role"
	GuestNumberKey contextKey = "guest_number"
)

// tokenClaims mirrors the claims the user service signs
type tokenClaims struct {
	UserID      string `json:"user_id"`
	GuestNumber *int64 `json:"guest_number,omitempty"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates the bearer token and puts either the user id or
// the guest number, plus the role, into the request context.
func AuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Debug("Missing authorization header")
				RespondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			scheme, tokenString, found := strings.Cut(authHeader, " ")
			if !found || scheme != "Bearer" || tokenString == "" {
				logger.Debug("Invalid authorization header format")
				RespondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			claims := &tokenClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil {
				logger.Debug("Token validation failed", zap.Error(err))
				if errors.Is(err, jwt.ErrTokenExpired) {
					RespondWithError(w, http.StatusUnauthorized, "token expired")
				} else {
					RespondWithError(w, http.StatusUnauthorized, "invalid token")
				}
				return
			}
			if !token.Valid || claims.Role == "" {
				logger.Debug("Invalid token claims")
				RespondWithError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), UserRoleKey, claims.Role)
			switch {
			case claims.GuestNumber != nil:
				ctx = context.WithValue(ctx, GuestNumberKey, *claims.GuestNumber)
				logger.Debug("Guest authenticated", zap.Int64("guest_number", *claims.GuestNumber))
			case claims.UserID != "" && claims.UserID != uuid.Nil.String():
				ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
				logger.Debug("User authenticated",
					zap.String("user_id", claims.UserID),
					zap.String("role", claims.Role),
				)
			default:
				logger.Debug("Token carries no identity")
				RespondWithError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID extracts user ID from request context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetUserRole extracts user role from request context
func GetUserRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(UserRoleKey).(string)
	return role, ok
}

// GetGuestNumber extracts the guest number from request context
func GetGuestNumber(ctx context.Context) (int64, bool) {
	n, ok := ctx.Value(GuestNumberKey).(int64)
	return n, ok
}

// callerKey identifies the caller for per-client bookkeeping, falling back
// to the remote address for anonymous requests.
func callerKey(r *http.Request) string {
	if userID, ok := GetUserID(r.Context()); ok {
		return "user:" + userID
	}
	if n, ok := GetGuestNumber(r.Context()); ok {
		return "guest:" + strconv.FormatInt(n, 10)
	}
	return "ip:" + r.RemoteAddr
}

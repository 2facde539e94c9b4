package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"atelier/pkg/auth"
	pkgerrors "atelier/pkg/errors"
)

// Limits applied by Authenticate.
const (
	ipRequestsPerMinute   = 300
	userRequestsPerMinute = 600
)

// Authenticate validates the bearer token and puts the user into the request
// context. Requests are rate limited per client IP before validation and per
// user after it.
func Authenticate(validator *auth.JWTValidator, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	ipLimiter := auth.NewIPRateLimiter(ipRequestsPerMinute)
	userLimiter := auth.NewUserRateLimiter(userRequestsPerMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)
			if allowed, _ := ipLimiter.Allow(r.Context(), clientIP); !allowed {
				errorHandler.Handle(w, r, pkgerrors.NewRateLimitError("Rate limit exceeded"))
				return
			}

			token := extractToken(r)
			if token == "" {
				errorHandler.Handle(w, r, pkgerrors.NewUnauthorizedError("Missing authentication token"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.Debug("Invalid token",
					zap.Error(err),
					zap.String("ip", clientIP),
					zap.String("path", r.URL.Path),
				)
				errorHandler.Handle(w, r, pkgerrors.NewUnauthorizedError(tokenErrorMessage(err)))
				return
			}

			if allowed, _ := userLimiter.Allow(r.Context(), claims.UserID); !allowed {
				errorHandler.Handle(w, r, pkgerrors.NewRateLimitError("User rate limit exceeded"))
				return
			}

			ctx := auth.SetUserInContext(r.Context(), &auth.UserContext{
				UserID: claims.UserID,
				Email:  claims.Email,
				Roles:  claims.Roles,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "Invalid token signature"
	default:
		return "Invalid token"
	}
}

// extractToken reads the Authorization header, then the auth_token cookie.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := r.Cookie("auth_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// getClientIP extracts the client IP address. RealIP has already rewritten
// RemoteAddr from X-Forwarded-For / X-Real-IP.
func getClientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"log/slog"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/garnizeh/contest/pkg/models"
)

type ctxKey string

const (
	CtxUserID   ctxKey = "user_id"
	CtxIsAdmin  ctxKey = "is_admin"
	CtxSettings ctxKey = "settings"
)

// package-level logger used by middleware and helpers; can be set via SetLogger from caller
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the api package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic", slog.Any("err", err), slog.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal", "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// SettingsMiddleware loads the platform settings once per request and
// stores the snapshot in the request context. A failed load is logged and
// the request continues with an empty snapshot.
func SettingsMiddleware(load func(ctx context.Context) (models.Settings, error)) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := load(r.Context())
			if err != nil {
				logger.Warn("load settings", slog.Any("err", err))
				s = models.Settings{}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), CtxSettings, s)))
		})
	}
}

// SettingsFrom returns the request's settings snapshot.
func SettingsFrom(ctx context.Context) models.Settings {
	s, _ := ctx.Value(CtxSettings).(models.Settings)
	if s == nil {
		return models.Settings{}
	}
	return s
}

// IssueToken signs a token carrying the user's id and admin flag.
func IssueToken(secret string, ttl time.Duration, u *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  u.ID,
		"username": u.Username,
		"is_admin": u.IsAdmin,
		"exp":      time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

func JWTAuthMiddlewareWithSecret(secret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing Authorization header")
				return
			}

			var tokenString string
			if _, err := fmt.Sscanf(authHeader, "Bearer %s", &tokenString); err != nil {
				logger.Debug("failed to parse Authorization header", slog.Any("err", err))
			}
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid Authorization header")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}

				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token claims")
				return
			}
			// JSON numbers decode as float64
			id, ok := claims["user_id"].(float64)
			if !ok || id <= 0 {
				writeError(w, http.StatusUnauthorized, "unauthorized", "token has no user")
				return
			}
			admin, _ := claims["is_admin"].(bool)

			ctx := context.WithValue(r.Context(), CtxUserID, int64(id))
			ctx = context.WithValue(ctx, CtxIsAdmin, admin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers that are not admins. The token's claim is
// re-checked against lookup so a revoked admin loses access before the token
// expires; a nil lookup trusts the claim.
func RequireAdmin(lookup func(ctx context.Context, id int64) (*models.User, error)) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsAdmin(r.Context()) {
				writeError(w, http.StatusForbidden, "forbidden", "admin access required")
				return
			}
			if lookup != nil {
				u, err := lookup(r.Context(), UserID(r.Context()))
				if err != nil || u == nil || !u.IsAdmin {
					writeError(w, http.StatusForbidden, "forbidden", "admin access required")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserID returns the authenticated user id, or 0.
func UserID(ctx context.Context) int64 {
	id, _ := ctx.Value(CtxUserID).(int64)
	return id
}

func IsAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(CtxIsAdmin).(bool)
	return v
}

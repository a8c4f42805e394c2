package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/rolegate/internal/access"
	"github.com/geocoder89/rolegate/internal/actorctx"
	"github.com/geocoder89/rolegate/internal/auth"
	"github.com/geocoder89/rolegate/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type AccessChecker interface {
	Check(ctx context.Context, authorization string, p access.Policy) (*auth.Claims, error)
}

type AuthMiddleware struct {
	gate AccessChecker
	log  *slog.Logger
}

func NewAuthMiddleware(gate AccessChecker, log *slog.Logger) *AuthMiddleware {
	if log == nil {
		log = slog.Default()
	}
	return &AuthMiddleware{gate: gate, log: log}
}

const (
	ctxUserIDKey = "auth.userID"
	ctxRoleKey   = "auth.role"
)

// Require runs the access gate for policy and aborts with the mapped status
// on the first failing check.
func (m *AuthMiddleware) Require(policy access.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.gate.Check(c.Request.Context(), c.GetHeader("Authorization"), policy)
		if err != nil {
			status, code, message := denial(err)

			if status == http.StatusInternalServerError {
				m.log.ErrorContext(c.Request.Context(), "access check failed", "err", err)
			} else {
				m.log.DebugContext(c.Request.Context(), "access denied", "code", code, "err", err)
			}

			c.AbortWithStatusJSON(status, gin.H{
				"error": gin.H{
					"code":      code,
					"message":   message,
					"requestId": c.GetString(CtxRequestID),
				},
			})
			return
		}

		// Stash useful bits of identity on the context
		c.Set(ctxUserIDKey, claims.UserID)
		c.Set(ctxRoleKey, claims.Role)
		c.Request = c.Request.WithContext(actorctx.With(c.Request.Context(), actorctx.Actor{
			UserID: claims.UserID,
			Role:   claims.Role,
		}))

		c.Next()
	}
}

// RequireAdmin is shorthand for the admin-only, active-account policy.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return m.Require(access.AdminOnly())
}

func denial(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, user.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized", "Missing, invalid or expired access token"
	case errors.Is(err, user.ErrForbidden):
		return http.StatusForbidden, "forbidden", "You do not have permission to perform this action"
	case errors.Is(err, user.ErrAccountBlocked):
		return http.StatusForbidden, "account_blocked", "Your account is blocked."
	default:
		return http.StatusInternalServerError, "internal_error", "Server error"
	}
}

// Optional helpers so handlers don't need to know the magic keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

func RoleFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxRoleKey)
	if !ok {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}

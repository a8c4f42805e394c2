package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/rolegate/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	if s := ctx.GetString("request_id"); s != "" {
		return s
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

// RespondDomainError maps account and access errors to a status and a fixed
// client message. The full error only goes to the log.
func RespondDomainError(ctx *gin.Context, log *slog.Logger, err error) {
	rctx := ctx.Request.Context()

	switch {
	case errors.Is(err, user.ErrUnknownRole):
		RespondError(ctx, http.StatusBadRequest, "unknown_role", "Invalid role specified", nil)
	case errors.Is(err, user.ErrDuplicateEmail):
		RespondConflict(ctx, "email_taken", "Email is already in use.")
	case errors.Is(err, user.ErrInvalidCredentials):
		RespondError(ctx, http.StatusBadRequest, "invalid_credentials", "Invalid credentials", nil)
	case errors.Is(err, user.ErrAccountBlocked):
		RespondError(ctx, http.StatusForbidden, "account_blocked", "Your account is blocked.", nil)
	case errors.Is(err, user.ErrPasswordTooLong):
		RespondBadRequest(ctx, "Invalid request body", gin.H{"fields": []FieldError{passwordTooLong}})
	case errors.Is(err, user.ErrOverloaded):
		log.WarnContext(rctx, "password hashing unavailable", "err", err)
		ctx.Header("Retry-After", "1")
		RespondError(ctx, http.StatusServiceUnavailable, "service_unavailable", "Server is busy, please retry", nil)
	case errors.Is(err, user.ErrInvalidStatus):
		RespondError(ctx, http.StatusBadRequest, "invalid_status", "Invalid status", nil)
	case errors.Is(err, user.ErrUnauthenticated):
		RespondError(ctx, http.StatusUnauthorized, "unauthorized", "Missing, invalid or expired access token", nil)
	case errors.Is(err, user.ErrForbidden):
		RespondError(ctx, http.StatusForbidden, "forbidden", "You do not have permission to perform this action", nil)
	case errors.Is(err, user.ErrStorageUnavailable):
		log.ErrorContext(rctx, "storage unavailable", "err", err)
		RespondInternal(ctx, "Server error")
	default:
		log.ErrorContext(rctx, "unhandled error", "err", err)
		RespondInternal(ctx, "Server error")
	}
}

package handlers

import (
	"net/http"

	"github.com/geocoder89/rolegate/internal/domain/user"
	"github.com/geocoder89/rolegate/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// Me echoes the caller's identity. It sits behind the active-account policy,
// so reaching it means the stored status was active.
func Me(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondError(ctx, http.StatusUnauthorized, "unauthorized", "Missing, invalid or expired access token", nil)
		return
	}

	role, _ := middlewares.RoleFromContext(ctx)

	ctx.JSON(http.StatusOK, gin.H{
		"id":     id,
		"role":   role,
		"status": user.StatusActive,
	})
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/geocoder89/rolegate/internal/domain/user"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UserAdmin interface {
	ListUsers(ctx context.Context) ([]user.User, error)
	SetStatus(ctx context.Context, id, status string) error
	DeleteUser(ctx context.Context, id string) error
}

type UsersHandler struct {
	svc UserAdmin
	log *slog.Logger
}

func NewUsersHandler(svc UserAdmin, log *slog.Logger) *UsersHandler {
	return &UsersHandler{svc: svc, log: log}
}

type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *UsersHandler) List(ctx *gin.Context) {
	users, err := h.svc.ListUsers(ctx.Request.Context())
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	// an empty store still renders as []
	if users == nil {
		users = []user.User{}
	}

	ctx.JSON(http.StatusOK, users)
}

func (h *UsersHandler) SetStatus(ctx *gin.Context) {
	id, ok := userIDParam(ctx)
	if !ok {
		return
	}

	var req SetStatusRequest
	if !BindJSON(ctx, &req) {
		return
	}

	if err := h.svc.SetStatus(ctx.Request.Context(), id, req.Status); err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "User " + req.Status})
}

func (h *UsersHandler) Delete(ctx *gin.Context) {
	id, ok := userIDParam(ctx)
	if !ok {
		return
	}

	if err := h.svc.DeleteUser(ctx.Request.Context(), id); err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

func userIDParam(ctx *gin.Context) (string, bool) {
	raw := ctx.Param("id")

	id, err := uuid.Parse(raw)
	if err != nil {
		RespondBadRequest(ctx, "Invalid user id", gin.H{"field": "id"})
		return "", false
	}

	return id.String(), true
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/rolegate/internal/account"
	"github.com/geocoder89/rolegate/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type Registrar interface {
	Register(ctx context.Context, in account.RegisterInput) (user.User, error)
}

type Authenticator interface {
	Login(ctx context.Context, email, password string) (account.LoginResult, error)
}

type AuthHandler struct {
	registrar Registrar
	authn     Authenticator
	log       *slog.Logger
}

func NewAuthHandler(registrar Registrar, authn Authenticator, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		registrar: registrar,
		authn:     authn,
		log:       log,
	}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=200"`
	Email    string `json:"email" binding:"required,email,max=320"`
	Password string `json:"password" binding:"required,bcryptlen"`
	Role     string `json:"role" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// bcrypt plus one or two round trips; generous enough for a queued hash
const authTimeout = 5 * time.Second

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), authTimeout)
	defer cancel()

	u, err := h.registrar.Register(cctx, account.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})

	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message": "User registered",
		"user":    u,
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), authTimeout)
	defer cancel()

	res, err := h.authn.Login(cctx, req.Email, req.Password)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, res)
}

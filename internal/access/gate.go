// Package access decides whether a request may perform a protected
// operation: a valid bearer token, an allowed role, and a live account
// status read from the store, checked in that order.
package access

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/geocoder89/rolegate/internal/auth"
	"github.com/geocoder89/rolegate/internal/domain/user"
)

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type StatusReader interface {
	FindUserStatus(ctx context.Context, id string) (user.Status, error)
}

// DenialRecorder counts rejected requests by reason.
type DenialRecorder interface {
	AccessDenied(reason string)
}

// Policy is the requirement attached to one protected operation.
type Policy struct {
	// Roles is the exact, case-sensitive allow-set. Empty admits any role.
	Roles         []string
	RequireActive bool
}

func AdminOnly() Policy {
	return Policy{Roles: []string{user.RoleAdmin}, RequireActive: true}
}

func Authenticated() Policy {
	return Policy{RequireActive: true}
}

type Gate struct {
	tokens TokenVerifier
	users  StatusReader
	denied DenialRecorder
}

func NewGate(tokens TokenVerifier, users StatusReader, denied DenialRecorder) *Gate {
	return &Gate{tokens: tokens, users: users, denied: denied}
}

// Check returns the verified claims or one of user.ErrUnauthenticated,
// user.ErrForbidden, user.ErrAccountBlocked, user.ErrStorageUnavailable.
func (g *Gate) Check(ctx context.Context, authorization string, p Policy) (*auth.Claims, error) {
	raw, ok := bearerToken(authorization)
	if !ok {
		return nil, g.deny("missing_token", fmt.Errorf("%w: missing bearer token", user.ErrUnauthenticated))
	}

	claims, err := g.tokens.Verify(raw)
	if err != nil {
		return nil, g.deny(tokenReason(err), fmt.Errorf("%w: %w", user.ErrUnauthenticated, err))
	}

	if len(p.Roles) > 0 && !slices.Contains(p.Roles, claims.Role) {
		return nil, g.deny("forbidden_role", fmt.Errorf("%w: role %q", user.ErrForbidden, claims.Role))
	}

	if !p.RequireActive {
		return claims, nil
	}

	// tokens cannot reflect a block issued after login, so read the source of truth
	status, err := g.users.FindUserStatus(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, g.deny("unknown_user", fmt.Errorf("%w: user %s no longer exists", user.ErrUnauthenticated, claims.UserID))
		}
		return nil, fmt.Errorf("%w: read status: %w", user.ErrStorageUnavailable, err)
	}

	if status == user.StatusBlocked {
		return nil, g.deny("blocked", fmt.Errorf("%w: user %s", user.ErrAccountBlocked, claims.UserID))
	}

	return claims, nil
}

func (g *Gate) deny(reason string, err error) error {
	if g.denied != nil {
		g.denied.AccessDenied(reason)
	}
	return err
}

func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}

	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return raw, raw != ""
}

func tokenReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpired):
		return "expired_token"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "malformed_token"
	}
}

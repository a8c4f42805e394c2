package user

import "errors"

// Store-level lookups.
var (
	ErrNotFound     = errors.New("user not found")
	ErrRoleNotFound = errors.New("role not found")
	ErrEmailTaken   = errors.New("email already in use")
)

// Errors surfaced by account operations and the access gate.
var (
	ErrUnknownRole        = errors.New("unknown role")
	ErrDuplicateEmail     = errors.New("duplicate email")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountBlocked     = errors.New("account blocked")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrPasswordTooLong    = errors.New("password too long")
	ErrOverloaded         = errors.New("password hashing unavailable")
)

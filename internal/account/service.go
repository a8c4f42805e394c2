package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geocoder89/rolegate/internal/actorctx"
	"github.com/geocoder89/rolegate/internal/auth"
	"github.com/geocoder89/rolegate/internal/cache"
	"github.com/geocoder89/rolegate/internal/domain/user"
	"github.com/geocoder89/rolegate/internal/security"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Store is the narrow persistence contract the account operations need.
type Store interface {
	FindRoleByName(ctx context.Context, name string) (user.Role, error)
	InsertUser(ctx context.Context, name, email, passwordHash string, roleID int64) (user.User, error)
	FindUserWithRoleByEmail(ctx context.Context, email string) (user.User, error)
	ListUsersWithRole(ctx context.Context) ([]user.User, error)
	UpdateUserStatus(ctx context.Context, id string, status user.Status) (int64, error)
	DeleteUser(ctx context.Context, id string) (int64, error)
}

type PasswordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Verify(ctx context.Context, plain, digest string) (bool, error)
	Equalize(ctx context.Context, plain string)
}

type TokenIssuer interface {
	Issue(c auth.Claims) (string, time.Time, error)
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      user.Public `json:"user"`
}

type Service struct {
	store  Store
	hasher PasswordHasher
	tokens TokenIssuer
	roles  *cache.Cache[user.Role]
	log    *slog.Logger
	tracer trace.Tracer
}

// roles are reference data created out of band, so a short cache is safe
const roleCacheTTL = 5 * time.Minute

func NewService(store Store, hasher PasswordHasher, tokens TokenIssuer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		roles:  cache.New[user.Role](roleCacheTTL),
		log:    log,
		tracer: otel.Tracer("github.com/geocoder89/rolegate/internal/account"),
	}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (u user.User, err error) {
	ctx, span := s.tracer.Start(ctx, "account.Register", trace.WithAttributes(attribute.String("role", in.Role)))
	defer func() { endSpan(span, err) }()

	role, err := s.lookupRole(ctx, in.Role)
	if err != nil {
		return user.User{}, err
	}

	digest, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return user.User{}, hashErr("register", err)
	}

	u, err = s.store.InsertUser(ctx, in.Name, in.Email, digest, role.ID)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return user.User{}, fmt.Errorf("register %s: %w", in.Email, user.ErrDuplicateEmail)
		}
		return user.User{}, storageErr("insert user", err)
	}

	u.PasswordHash = ""
	s.log.InfoContext(ctx, "user registered", "user_id", u.ID, "role", u.Role)

	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (res LoginResult, err error) {
	ctx, span := s.tracer.Start(ctx, "account.Login")
	defer func() { endSpan(span, err) }()

	found, err := s.store.FindUserWithRoleByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.hasher.Equalize(ctx, password)
			return LoginResult{}, user.ErrInvalidCredentials
		}
		return LoginResult{}, storageErr("find user by email", err)
	}

	ok, err := s.hasher.Verify(ctx, password, found.PasswordHash)
	if err != nil {
		if ctx.Err() != nil || isContextErr(err) {
			return LoginResult{}, hashErr("login", err)
		}
		// a corrupt digest or an over-long password can never match
		s.log.WarnContext(ctx, "password verification failed", "user_id", found.ID, "err", err)
		return LoginResult{}, user.ErrInvalidCredentials
	}
	if !ok {
		return LoginResult{}, user.ErrInvalidCredentials
	}

	if found.Blocked() {
		return LoginResult{}, fmt.Errorf("login %s: %w", found.ID, user.ErrAccountBlocked)
	}

	token, exp, err := s.tokens.Issue(auth.Claims{UserID: found.ID, Role: found.Role})
	if err != nil {
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}

	return LoginResult{
		Token:     token,
		ExpiresAt: exp,
		User:      found.Public(),
	}, nil
}

// ListUsers returns every user, newest first.
func (s *Service) ListUsers(ctx context.Context) (users []user.User, err error) {
	ctx, span := s.tracer.Start(ctx, "account.ListUsers")
	defer func() { endSpan(span, err) }()

	users, err = s.store.ListUsersWithRole(ctx)
	if err != nil {
		return nil, storageErr("list users", err)
	}

	for i := range users {
		users[i].PasswordHash = ""
	}

	return users, nil
}

// SetStatus is idempotent and treats an unknown id as success.
func (s *Service) SetStatus(ctx context.Context, id, status string) (err error) {
	ctx, span := s.tracer.Start(ctx, "account.SetStatus", trace.WithAttributes(
		attribute.String("user_id", id),
		attribute.String("status", status),
	))
	defer func() { endSpan(span, err) }()

	st, err := user.ParseStatus(status)
	if err != nil {
		return fmt.Errorf("set status %q: %w", status, err)
	}

	n, err := s.store.UpdateUserStatus(ctx, id, st)
	if err != nil {
		return storageErr("update status", err)
	}

	if n == 0 {
		s.log.DebugContext(ctx, "status update matched no user", "user_id", id)
		return nil
	}

	s.log.InfoContext(ctx, "user status changed", "user_id", id, "status", st, "actor_id", actorID(ctx))

	return nil
}

// DeleteUser treats an unknown id as success.
func (s *Service) DeleteUser(ctx context.Context, id string) (err error) {
	ctx, span := s.tracer.Start(ctx, "account.DeleteUser", trace.WithAttributes(attribute.String("user_id", id)))
	defer func() { endSpan(span, err) }()

	n, err := s.store.DeleteUser(ctx, id)
	if err != nil {
		return storageErr("delete user", err)
	}

	if n == 0 {
		s.log.DebugContext(ctx, "delete matched no user", "user_id", id)
		return nil
	}

	s.log.InfoContext(ctx, "user deleted", "user_id", id, "actor_id", actorID(ctx))

	return nil
}

// EnsureAdmin registers an admin account unless the email is already taken.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	_, err := s.Register(ctx, RegisterInput{Name: name, Email: email, Password: password, Role: user.RoleAdmin})
	if errors.Is(err, user.ErrDuplicateEmail) {
		return nil
	}

	return err
}

func (s *Service) lookupRole(ctx context.Context, name string) (user.Role, error) {
	if r, ok := s.roles.Get(name); ok {
		return r, nil
	}

	r, err := s.store.FindRoleByName(ctx, name)
	if err != nil {
		if errors.Is(err, user.ErrRoleNotFound) {
			return user.Role{}, fmt.Errorf("role %q: %w", name, user.ErrUnknownRole)
		}
		return user.Role{}, storageErr("find role", err)
	}

	s.roles.Set(name, r)

	return r, nil
}

func actorID(ctx context.Context) string {
	if a, ok := actorctx.From(ctx); ok {
		return a.UserID
	}
	return "system"
}

// hashErr separates bad input from a hashing pool that could not serve the
// request in time.
func hashErr(op string, err error) error {
	switch {
	case errors.Is(err, security.ErrPasswordTooLong):
		return fmt.Errorf("%s: %w", op, user.ErrPasswordTooLong)
	case isContextErr(err):
		return fmt.Errorf("%w: %s: %w", user.ErrOverloaded, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", user.ErrStorageUnavailable, op, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

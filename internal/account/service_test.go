package account

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/geocoder89/rolegate/internal/actorctx"
	"github.com/geocoder89/rolegate/internal/auth"
	"github.com/geocoder89/rolegate/internal/domain/user"
	"github.com/geocoder89/rolegate/internal/repo/memory"
	"github.com/geocoder89/rolegate/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (*Service, *memory.UsersRepo, *auth.Manager) {
	t.Helper()

	repo := memory.NewUsersRepo(user.RoleAdmin, user.RoleUser)
	tokens := auth.NewManager([]byte("svc-secret"))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewService(repo, security.NewHasher(bcrypt.MinCost, 2), tokens, log), repo, tokens
}

func TestRegister_Success(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Name: "Alice", Email: "alice@x.com", Password: "pw123", Role: "admin"})
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "admin", u.Role)
	assert.Equal(t, user.StatusActive, u.Status)
	assert.Empty(t, u.PasswordHash)

	stored, err := repo.FindUserWithRoleByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "pw123", stored.PasswordHash)
	assert.NotEmpty(t, stored.PasswordHash)
}

func TestRegister_UnknownRoleCreatesNothing(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "Eve", Email: "eve@x.com", Password: "pw", Role: "root"})
	require.ErrorIs(t, err, user.ErrUnknownRole)

	users, err := repo.ListUsersWithRole(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	in := RegisterInput{Name: "Bob", Email: "bob@x.com", Password: "pw", Role: "user"}
	_, err := svc.Register(ctx, in)
	require.NoError(t, err)

	_, err = svc.Register(ctx, in)
	require.ErrorIs(t, err, user.ErrDuplicateEmail)

	users, err := repo.ListUsersWithRole(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestLogin(t *testing.T) {
	svc, _, tokens := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterInput{Name: "Alice", Email: "alice@x.com", Password: "pw123", Role: "admin"})
	require.NoError(t, err)

	res, err := svc.Login(ctx, "alice@x.com", "pw123")
	require.NoError(t, err)
	assert.Equal(t, user.Public{ID: registered.ID, Name: "Alice", Role: "admin", Status: user.StatusActive}, res.User)

	claims, err := tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "Alice", Email: "alice@x.com", Password: "pw123", Role: "admin"})
	require.NoError(t, err)

	_, wrongPw := svc.Login(ctx, "alice@x.com", "nope")
	_, unknown := svc.Login(ctx, "ghost@x.com", "pw123")

	require.ErrorIs(t, wrongPw, user.ErrInvalidCredentials)
	require.ErrorIs(t, unknown, user.ErrInvalidCredentials)
	assert.Equal(t, wrongPw.Error(), unknown.Error())
}

func TestLogin_Blocked(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Name: "Bob", Email: "bob@x.com", Password: "pw", Role: "user"})
	require.NoError(t, err)
	require.NoError(t, svc.SetStatus(ctx, u.ID, "blocked"))

	_, err = svc.Login(ctx, "bob@x.com", "pw")
	require.ErrorIs(t, err, user.ErrAccountBlocked)

	// a wrong password on a blocked account must not reveal the block
	_, err = svc.Login(ctx, "bob@x.com", "wrong")
	require.ErrorIs(t, err, user.ErrInvalidCredentials)
}

func TestSetStatus(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Name: "Bob", Email: "bob@x.com", Password: "pw", Role: "user"})
	require.NoError(t, err)

	require.NoError(t, svc.SetStatus(ctx, u.ID, "blocked"))
	require.NoError(t, svc.SetStatus(ctx, u.ID, "blocked"))

	st, err := repo.FindUserStatus(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, user.StatusBlocked, st)

	require.ErrorIs(t, svc.SetStatus(ctx, u.ID, "Blocked"), user.ErrInvalidStatus)
	require.ErrorIs(t, svc.SetStatus(ctx, u.ID, "suspended"), user.ErrInvalidStatus)

	require.NoError(t, svc.SetStatus(ctx, "00000000-0000-0000-0000-000000000000", "active"))
}

func TestDeleteUser_Idempotent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Name: "Bob", Email: "bob@x.com", Password: "pw", Role: "user"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, u.ID))
	require.NoError(t, svc.DeleteUser(ctx, u.ID))

	_, err = repo.FindUserStatus(ctx, u.ID)
	require.ErrorIs(t, err, user.ErrNotFound)
}

func TestListUsers_StripsDigests(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, email := range []string{"a@x.com", "b@x.com"} {
		_, err := svc.Register(ctx, RegisterInput{Name: email, Email: email, Password: "pw", Role: "user"})
		require.NoError(t, err)
	}

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.Empty(t, u.PasswordHash)
		assert.Equal(t, "user", u.Role)
	}
}

func TestEnsureAdmin(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "Root", "root@x.com", "pw"))
	require.NoError(t, svc.EnsureAdmin(ctx, "Root", "root@x.com", "pw"))
	require.NoError(t, svc.EnsureAdmin(ctx, "Root", "", ""))

	users, err := repo.ListUsersWithRole(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, user.RoleAdmin, users[0].Role)
}

// failingStore returns err from every call and counts role lookups.
type failingStore struct {
	err         error
	roleLookups int
}

func (f *failingStore) FindRoleByName(context.Context, string) (user.Role, error) {
	f.roleLookups++
	return user.Role{ID: 1, Name: "user"}, nil
}

func (f *failingStore) InsertUser(context.Context, string, string, string, int64) (user.User, error) {
	return user.User{}, f.err
}

func (f *failingStore) FindUserWithRoleByEmail(context.Context, string) (user.User, error) {
	return user.User{}, f.err
}

func (f *failingStore) ListUsersWithRole(context.Context) ([]user.User, error) {
	return nil, f.err
}

func (f *failingStore) UpdateUserStatus(context.Context, string, user.Status) (int64, error) {
	return 0, f.err
}

func (f *failingStore) DeleteUser(context.Context, string) (int64, error) {
	return 0, f.err
}

func TestStoreFailuresAreStorageUnavailable(t *testing.T) {
	store := &failingStore{err: errors.New("dial tcp: connection refused")}
	svc := NewService(store, security.NewHasher(bcrypt.MinCost, 1), auth.NewManager([]byte("k")), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "a", Email: "a@x.com", Password: "pw", Role: "user"})
	assert.ErrorIs(t, err, user.ErrStorageUnavailable)

	_, err = svc.Login(ctx, "a@x.com", "pw")
	assert.ErrorIs(t, err, user.ErrStorageUnavailable)

	_, err = svc.ListUsers(ctx)
	assert.ErrorIs(t, err, user.ErrStorageUnavailable)

	assert.ErrorIs(t, svc.SetStatus(ctx, "id", "active"), user.ErrStorageUnavailable)
	assert.ErrorIs(t, svc.DeleteUser(ctx, "id"), user.ErrStorageUnavailable)

	// the second register reuses the cached role
	_, _ = svc.Register(ctx, RegisterInput{Name: "b", Email: "b@x.com", Password: "pw", Role: "user"})
	assert.Equal(t, 1, store.roleLookups)
}

func TestSetStatus_LogsActor(t *testing.T) {
	var buf bytes.Buffer

	repo := memory.NewUsersRepo(user.RoleAdmin, user.RoleUser)
	svc := NewService(repo, security.NewHasher(bcrypt.MinCost, 1), auth.NewManager([]byte("k")), slog.New(slog.NewJSONHandler(&buf, nil)))

	u, err := svc.Register(context.Background(), RegisterInput{Name: "Bob", Email: "bob@x.com", Password: "pw", Role: "user"})
	require.NoError(t, err)

	ctx := actorctx.With(context.Background(), actorctx.Actor{UserID: "admin-1", Role: "admin"})
	require.NoError(t, svc.SetStatus(ctx, u.ID, "blocked"))

	assert.Contains(t, buf.String(), `"msg":"user status changed"`)
	assert.Contains(t, buf.String(), `"actor_id":"admin-1"`)
}

// slowHasher hashes normally but its Verify behaves like a pool that never
// frees a slot before the deadline.
type slowHasher struct {
	*security.Hasher
	verifyErr error
}

func (h slowHasher) Verify(context.Context, string, string) (bool, error) {
	return false, h.verifyErr
}

func TestLogin_HashingFailuresAreNotInvalidCredentials(t *testing.T) {
	repo := memory.NewUsersRepo(user.RoleAdmin, user.RoleUser)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewManager([]byte("k"))
	hasher := security.NewHasher(bcrypt.MinCost, 1)

	ctx := context.Background()
	_, err := NewService(repo, hasher, tokens, log).Register(ctx, RegisterInput{Name: "Bob", Email: "bob@x.com", Password: "pw", Role: "user"})
	require.NoError(t, err)

	busy := NewService(repo, slowHasher{Hasher: hasher, verifyErr: fmt.Errorf("verify password: %w", context.DeadlineExceeded)}, tokens, log)
	_, err = busy.Login(ctx, "bob@x.com", "pw")
	assert.ErrorIs(t, err, user.ErrOverloaded)
	assert.NotErrorIs(t, err, user.ErrInvalidCredentials)

	corrupt := NewService(repo, slowHasher{Hasher: hasher, verifyErr: errors.New("verify password: crypto/bcrypt: hashedSecret too short")}, tokens, log)
	_, err = corrupt.Login(ctx, "bob@x.com", "pw")
	assert.ErrorIs(t, err, user.ErrInvalidCredentials)
}

func TestRegister_PasswordOverByteLimit(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Bob", Email: "bob@x.com", Password: strings.Repeat("é", 40), Role: "user"})
	assert.ErrorIs(t, err, user.ErrPasswordTooLong)
}

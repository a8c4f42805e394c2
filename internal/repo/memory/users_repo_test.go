package memory

import (
	"context"
	"testing"
	"time"

	"github.com/geocoder89/rolegate/internal/domain/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsersRepo_InsertAndLookup(t *testing.T) {
	ctx := context.Background()
	r := NewUsersRepo(user.RoleAdmin, user.RoleUser)

	role, err := r.FindRoleByName(ctx, user.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, int64(2), role.ID)

	_, err = r.FindRoleByName(ctx, "superuser")
	require.ErrorIs(t, err, user.ErrRoleNotFound)

	u, err := r.InsertUser(ctx, "Bob", "bob@x.com", "digest", role.ID)
	require.NoError(t, err)
	assert.Equal(t, user.StatusActive, u.Status)
	assert.Equal(t, user.RoleUser, u.Role)

	_, err = r.InsertUser(ctx, "Bob2", "BOB@x.com", "digest", role.ID)
	require.ErrorIs(t, err, user.ErrEmailTaken)

	found, err := r.FindUserWithRoleByEmail(ctx, "bob@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)
	assert.Equal(t, "digest", found.PasswordHash)

	_, err = r.FindUserWithRoleByEmail(ctx, "nobody@x.com")
	require.ErrorIs(t, err, user.ErrNotFound)
}

func TestUsersRepo_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	r := NewUsersRepo(user.RoleUser)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		at := base.Add(time.Duration(i) * time.Hour)
		r.now = func() time.Time { return at }
		_, err := r.InsertUser(ctx, email, email, "d", 1)
		require.NoError(t, err)
	}

	users, err := r.ListUsersWithRole(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "c@x.com", users[0].Email)
	assert.Equal(t, "a@x.com", users[2].Email)
}

func TestUsersRepo_StatusAndDelete(t *testing.T) {
	ctx := context.Background()
	r := NewUsersRepo(user.RoleUser)

	u, err := r.InsertUser(ctx, "Carol", "carol@x.com", "d", 1)
	require.NoError(t, err)

	n, err := r.UpdateUserStatus(ctx, u.ID, user.StatusBlocked)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	st, err := r.FindUserStatus(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, user.StatusBlocked, st)

	n, err = r.UpdateUserStatus(ctx, "missing", user.StatusBlocked)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = r.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = r.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = r.FindUserStatus(ctx, u.ID)
	require.ErrorIs(t, err, user.ErrNotFound)

	// the email is free again once the row is gone
	_, err = r.InsertUser(ctx, "Carol", "carol@x.com", "d", 1)
	require.NoError(t, err)
}

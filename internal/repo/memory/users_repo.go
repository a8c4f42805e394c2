package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/rolegate/internal/domain/user"
	"github.com/google/uuid"
)

// UsersRepo keeps users and roles in process memory. It mirrors the postgres
// schema: unique emails, users referencing roles by id.
type UsersRepo struct {
	mu      sync.RWMutex
	roles   map[int64]user.Role
	users   map[string]user.User
	byEmail map[string]string
	now     func() time.Time
}

// NewUsersRepo seeds the given role names with ids starting at 1.
func NewUsersRepo(roleNames ...string) *UsersRepo {
	r := &UsersRepo{
		roles:   make(map[int64]user.Role),
		users:   make(map[string]user.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}

	for i, name := range roleNames {
		id := int64(i + 1)
		r.roles[id] = user.Role{ID: id, Name: name}
	}

	return r
}

func (r *UsersRepo) FindRoleByName(_ context.Context, name string) (user.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, role := range r.roles {
		if role.Name == name {
			return role, nil
		}
	}

	return user.Role{}, user.ErrRoleNotFound
}

func (r *UsersRepo) InsertUser(_ context.Context, name, email, passwordHash string, roleID int64) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.roles[roleID]
	if !ok {
		return user.User{}, user.ErrRoleNotFound
	}

	key := strings.ToLower(email)
	if _, taken := r.byEmail[key]; taken {
		return user.User{}, user.ErrEmailTaken
	}

	u := user.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		RoleID:       role.ID,
		Role:         role.Name,
		Status:       user.StatusActive,
		CreatedAt:    r.now().UTC(),
	}

	r.users[u.ID] = u
	r.byEmail[key] = u.ID

	return u, nil
}

func (r *UsersRepo) FindUserWithRoleByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return r.withRole(r.users[id]), nil
}

func (r *UsersRepo) ListUsersWithRole(_ context.Context) ([]user.User, error) {
	r.mu.RLock()
	out := make([]user.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, r.withRole(u))
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

func (r *UsersRepo) UpdateUserStatus(_ context.Context, id string, status user.Status) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return 0, nil
	}

	u.Status = status
	r.users[id] = u

	return 1, nil
}

func (r *UsersRepo) DeleteUser(_ context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return 0, nil
	}

	delete(r.users, id)
	delete(r.byEmail, strings.ToLower(u.Email))

	return 1, nil
}

func (r *UsersRepo) FindUserStatus(_ context.Context, id string) (user.Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return "", user.ErrNotFound
	}

	return u.Status, nil
}

func (r *UsersRepo) Ping(context.Context) error {
	return nil
}

// caller holds the lock
func (r *UsersRepo) withRole(u user.User) user.User {
	u.Role = r.roles[u.RoleID].Name
	return u
}

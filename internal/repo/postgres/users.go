package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/rolegate/internal/domain/user"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the repo uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Observer wraps each logical DB operation. observability.Prom implements it.
type Observer interface {
	ObserveDB(op string, fn func() error) error
}

type UsersRepo struct {
	db  DB
	obs Observer
}

func NewUsersRepo(db DB, obs Observer) *UsersRepo {
	return &UsersRepo{db: db, obs: obs}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.obs == nil {
		return fn()
	}
	return r.obs.ObserveDB(op, fn)
}

func (r *UsersRepo) FindRoleByName(ctx context.Context, name string) (user.Role, error) {
	var role user.Role

	err := r.observe("roles.find_by_name", func() error {
		return r.db.QueryRow(ctx,
			`SELECT id, name FROM roles WHERE name = $1`,
			name,
		).Scan(&role.ID, &role.Name)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.Role{}, user.ErrRoleNotFound
		}
		return user.Role{}, fmt.Errorf("find role: %w", err)
	}

	return role, nil
}

func (r *UsersRepo) InsertUser(ctx context.Context, name, email, passwordHash string, roleID int64) (user.User, error) {
	var u user.User

	err := r.observe("users.insert", func() error {
		return r.db.QueryRow(ctx, `
			WITH inserted AS (
				INSERT INTO users (name, email, password_hash, role_id)
				VALUES ($1, $2, $3, $4)
				RETURNING id::text AS id, name, email, password_hash, role_id, status, created_at
			)
			SELECT i.id, i.name, i.email, i.password_hash, i.role_id, r.name, i.status, i.created_at
			FROM inserted i
			JOIN roles r ON r.id = i.role_id`,
			name, email, passwordHash, roleID,
		).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.RoleID, &u.Role, &u.Status, &u.CreatedAt)
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

func (r *UsersRepo) FindUserWithRoleByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.find_by_email", func() error {
		return r.db.QueryRow(ctx, `
			SELECT u.id::text, u.name, u.email, u.password_hash, u.role_id, r.name, u.status, u.created_at
			FROM users u
			JOIN roles r ON r.id = u.role_id
			WHERE lower(u.email) = lower($1)`,
			email,
		).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.RoleID, &u.Role, &u.Status, &u.CreatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, fmt.Errorf("find user by email: %w", err)
	}

	return u, nil
}

func (r *UsersRepo) ListUsersWithRole(ctx context.Context) ([]user.User, error) {
	var out []user.User

	err := r.observe("users.list", func() error {
		rows, err := r.db.Query(ctx, `
			SELECT u.id::text, u.name, u.email, u.role_id, r.name, u.status, u.created_at
			FROM users u
			JOIN roles r ON r.id = u.role_id
			ORDER BY u.created_at DESC, u.id DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]user.User, 0)
		for rows.Next() {
			var u user.User
			if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.RoleID, &u.Role, &u.Status, &u.CreatedAt); err != nil {
				return err
			}
			out = append(out, u)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return out, nil
}

func (r *UsersRepo) UpdateUserStatus(ctx context.Context, id string, status user.Status) (int64, error) {
	var tag pgconn.CommandTag

	err := r.observe("users.update_status", func() error {
		var err error
		tag, err = r.db.Exec(ctx, `UPDATE users SET status = $1 WHERE id = $2::uuid`, string(status), id)
		return err
	})

	if err != nil {
		return 0, fmt.Errorf("update status: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *UsersRepo) DeleteUser(ctx context.Context, id string) (int64, error) {
	var tag pgconn.CommandTag

	err := r.observe("users.delete", func() error {
		var err error
		tag, err = r.db.Exec(ctx, `DELETE FROM users WHERE id = $1::uuid`, id)
		return err
	})

	if err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *UsersRepo) FindUserStatus(ctx context.Context, id string) (user.Status, error) {
	var status user.Status

	err := r.observe("users.find_status", func() error {
		return r.db.QueryRow(ctx, `SELECT status FROM users WHERE id = $1::uuid`, id).Scan(&status)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", user.ErrNotFound
		}
		return "", fmt.Errorf("find status: %w", err)
	}

	return status, nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

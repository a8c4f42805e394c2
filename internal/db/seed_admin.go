package db

import (
	"context"

	"github.com/geocoder89/rolegate/internal/config"
)

type AdminSeeder interface {
	EnsureAdmin(ctx context.Context, name, email, password string) error
}

// EnsureAdminUser creates the bootstrap admin from ADMIN_* settings. It is a
// no-op when the settings are empty or the email is already registered.
func EnsureAdminUser(ctx context.Context, seeder AdminSeeder, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	return seeder.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword)
}

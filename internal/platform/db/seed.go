package db

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"zonafiscal/internal/domain/auth"
	"zonafiscal/internal/platform/config"
)

// Seed creates the first super-admin account when the users table is empty.
// Skipped entirely when SEED_ADMIN_EMAIL is unset.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.SeedAdminEmail == "" || cfg.SeedAdminPassword == "" {
		return nil
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(1) FROM users`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(cfg.SeedAdminPassword)
	if err != nil {
		return err
	}

	perms, err := json.Marshal(auth.AllPermissions)
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
    INSERT INTO users (email, name, password_hash, admin_role, admin_permissions)
    VALUES ($1, $2, $3, $4, $5)
  `, cfg.SeedAdminEmail, "Administrador", hash, auth.RoleSuperAdmin, perms); err != nil {
		return err
	}

	slog.Info("seeded super admin", "email", cfg.SeedAdminEmail)
	return nil
}

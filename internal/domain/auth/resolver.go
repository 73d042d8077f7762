package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Resolver maps a user id to its admin capability set. Lookup failures
// resolve to an empty Access so callers deny by default; the resolver never
// grants on error.
type Resolver struct {
	DB               *pgxpool.Pool
	superAdminEmails map[string]struct{}
}

func NewResolver(db *pgxpool.Pool, superAdminEmails []string) *Resolver {
	set := make(map[string]struct{}, len(superAdminEmails))
	for _, email := range superAdminEmails {
		normalized := strings.ToLower(strings.TrimSpace(email))
		if normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return &Resolver{DB: db, superAdminEmails: set}
}

func (r *Resolver) Resolve(ctx context.Context, userID string) Access {
	var email, role string
	var permsJSON []byte
	err := r.DB.QueryRow(ctx, `
    SELECT email, admin_role, admin_permissions
    FROM users
    WHERE id = $1
  `, userID).Scan(&email, &role, &permsJSON)
	if err != nil {
		slog.Warn("permission lookup failed", "userId", userID, "err", err)
		return Access{Role: RoleNone}
	}
	return r.build(email, role, permsJSON)
}

func (r *Resolver) build(email, role string, permsJSON []byte) Access {
	if _, ok := r.superAdminEmails[strings.ToLower(email)]; ok {
		return Access{
			IsSuperAdmin: true,
			IsAdmin:      true,
			Permissions:  []string{PermAll},
			Role:         RoleSuperAdmin,
		}
	}

	var permissions []string
	if len(permsJSON) > 0 {
		if err := json.Unmarshal(permsJSON, &permissions); err != nil {
			slog.Warn("permission list unmarshal failed", "err", err)
			permissions = nil
		}
	}

	access := Access{Permissions: permissions, Role: role}
	switch role {
	case RoleSuperAdmin:
		access.IsSuperAdmin = true
		access.IsAdmin = true
		access.Permissions = []string{PermAll}
	case RoleAdmin:
		access.IsAdmin = true
	}
	return access
}

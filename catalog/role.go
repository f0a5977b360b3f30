package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// AssignRole grants or replaces a user's role inside a tenant.
func (s *Store) AssignRole(ctx context.Context, r *UserTenantRole) error {
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	if !ValidRole(r.Role) {
		return errors.New("catalog: unknown role " + r.Role)
	}
	lines, err := json.Marshal(r.ProductLineIDs)
	if err != nil {
		return fmt.Errorf("catalog: marshal product lines: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO user_tenant_roles (id, user_id, tenant_id, role, product_line_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, tenant_id) DO UPDATE SET
			role = excluded.role, product_line_ids = excluded.product_line_ids`,
		r.ID, r.UserID, r.TenantID, r.Role, string(lines), r.CreatedAt)
	return err
}

// RolesForUser returns every tenant role held by a user.
func (s *Store) RolesForUser(ctx context.Context, userID string) ([]*UserTenantRole, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, tenant_id, role, product_line_ids, created_at
		FROM user_tenant_roles WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*UserTenantRole
	for rows.Next() {
		var r UserTenantRole
		var lines string
		if err := rows.Scan(&r.ID, &r.UserID, &r.TenantID, &r.Role, &lines, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(lines), &r.ProductLineIDs); err != nil {
			return nil, fmt.Errorf("catalog: corrupt product lines for role %s: %w", r.ID, err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// RevokeRole removes a user's role in one tenant.
func (s *Store) RevokeRole(ctx context.Context, userID, tenantID string) error {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM user_tenant_roles WHERE user_id = ? AND tenant_id = ?`, userID, tenantID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

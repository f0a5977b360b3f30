package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// InsertLoginAccount adds a credential. TenantID nil makes it a landlord
// account.
func (s *Store) InsertLoginAccount(ctx context.Context, a *LoginAccount) error {
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().UnixMilli()
	}
	if !ValidRole(a.Role) {
		return errors.New("catalog: unknown role " + a.Role)
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO login_accounts (id, username, password_hash, tenant_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Username, a.PasswordHash, a.TenantID, a.UserID, a.Role, a.CreatedAt)
	return err
}

// GetLandlordAccount looks up a global (tenant-less) account by username.
func (s *Store) GetLandlordAccount(ctx context.Context, username string) (*LoginAccount, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, username, password_hash, tenant_id, user_id, role, created_at
		FROM login_accounts WHERE username = ? AND tenant_id IS NULL`, username)
	return scanAccount(row)
}

// GetTenantAccount looks up an account scoped to a tenant.
func (s *Store) GetTenantAccount(ctx context.Context, tenantID, username string) (*LoginAccount, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, username, password_hash, tenant_id, user_id, role, created_at
		FROM login_accounts WHERE username = ? AND tenant_id = ?`, username, tenantID)
	return scanAccount(row)
}

// SetPassword replaces an account's password hash.
func (s *Store) SetPassword(ctx context.Context, accountID, passwordHash string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE login_accounts SET password_hash = ? WHERE id = ?`, passwordHash, accountID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListTenantAccounts returns the accounts of one tenant.
func (s *Store) ListTenantAccounts(ctx context.Context, tenantID string) ([]*LoginAccount, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, username, password_hash, tenant_id, user_id, role, created_at
		FROM login_accounts WHERE tenant_id = ? ORDER BY username`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*LoginAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteLoginAccount removes a credential.
func (s *Store) DeleteLoginAccount(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM login_accounts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanAccount(row rowScanner) (*LoginAccount, error) {
	var a LoginAccount
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.TenantID, &a.UserID,
		&a.Role, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

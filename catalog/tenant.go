package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// InsertTenant adds a tenant.
func (s *Store) InsertTenant(ctx context.Context, t *Tenant) error {
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().UnixMilli()
	}
	var code any
	if t.CompanyCode != "" {
		code = t.CompanyCode
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO tenants (id, name, company_code, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Name, code, t.CreatedAt)
	return err
}

// GetTenant retrieves a tenant by id, or ErrNotFound.
func (s *Store) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, name, company_code, created_at FROM tenants WHERE id = ?`, id)
	return scanTenant(row)
}

// GetTenantByCode retrieves a tenant by its landing company code.
func (s *Store) GetTenantByCode(ctx context.Context, code string) (*Tenant, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, name, company_code, created_at FROM tenants WHERE company_code = ?`, code)
	return scanTenant(row)
}

// ListTenants returns all tenants, newest first.
func (s *Store) ListTenants(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, company_code, created_at FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTenant updates name and company code.
func (s *Store) UpdateTenant(ctx context.Context, t *Tenant) error {
	var code any
	if t.CompanyCode != "" {
		code = t.CompanyCode
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE tenants SET name = ?, company_code = ? WHERE id = ?`,
		t.Name, code, t.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteTenant removes a tenant; dependent rows cascade.
func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanTenant(row rowScanner) (*Tenant, error) {
	var t Tenant
	var code sql.NullString
	err := row.Scan(&t.ID, &t.Name, &code, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.CompanyCode = code.String
	return &t, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

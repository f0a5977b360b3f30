package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// InsertProductLine adds a product line to a tenant.
func (s *Store) InsertProductLine(ctx context.Context, p *ProductLine) error {
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO product_lines (id, tenant_id, name, active, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.TenantID, p.Name, p.Active, p.CreatedAt)
	return err
}

// GetProductLine retrieves a product line by id, or ErrNotFound.
func (s *Store) GetProductLine(ctx context.Context, id string) (*ProductLine, error) {
	var p ProductLine
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, active, created_at FROM product_lines WHERE id = ?`, id).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.Active, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProductLines returns a tenant's product lines; activeOnly skips
// deactivated ones.
func (s *Store) ListProductLines(ctx context.Context, tenantID string, activeOnly bool) ([]*ProductLine, error) {
	q := `SELECT id, tenant_id, name, active, created_at FROM product_lines WHERE tenant_id = ?`
	if activeOnly {
		q += ` AND active = 1`
	}
	q += ` ORDER BY name`

	rows, err := s.DB.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ProductLine
	for rows.Next() {
		var p ProductLine
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// UpdateProductLine updates name and active flag.
func (s *Store) UpdateProductLine(ctx context.Context, p *ProductLine) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE product_lines SET name = ?, active = ? WHERE id = ?`,
		p.Name, p.Active, p.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteProductLine removes a product line.
func (s *Store) DeleteProductLine(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM product_lines WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

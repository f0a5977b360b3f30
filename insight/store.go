package insight

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when no insight has the given id.
var ErrNotFound = errors.New("insight: not found")

// Store wraps the insights table. The enrichment processor is the only
// caller of SetEnrichment; everything else is read or create.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

const insightCols = `id, tenant_id, product_line_id, territory_id, kind,
	text, audio_url, photo_url, ocr_text, enrichment_json, enriched_at, created_at`

// Insert persists a new insight in a single statement.
func (s *Store) Insert(ctx context.Context, ins *RawInsight) error {
	if ins.CreatedAt == 0 {
		ins.CreatedAt = time.Now().UnixMilli()
	}
	if ins.Kind == "" {
		ins.Kind = KindFieldInsight
	}
	if !ValidKind(ins.Kind) {
		return fmt.Errorf("insight: unknown kind %q", ins.Kind)
	}

	var enrichment any
	if len(ins.Enrichment) > 0 {
		enrichment = string(ins.Enrichment)
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO insights (`+insightCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ins.ID, ins.TenantID, ins.ProductLineID, ins.TerritoryID, ins.Kind,
		ins.Text, ins.AudioURL, ins.PhotoURL, ins.OCRText, enrichment,
		ins.EnrichedAt, ins.CreatedAt,
	)
	return err
}

// Get retrieves an insight by id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*RawInsight, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+insightCols+` FROM insights WHERE id = ?`, id)
	return scanInsight(row)
}

// Filter narrows a List call. Zero values mean "no constraint"; TenantID
// filters to exactly that tenant (global records are listed only when
// IncludeGlobal is set).
type Filter struct {
	TenantID      string
	ProductLineID string
	Kind          string
	Search        string // substring match on text
	IncludeGlobal bool
	Limit         int
}

// List returns insights newest-first, filtered.
func (s *Store) List(ctx context.Context, f Filter) ([]*RawInsight, error) {
	var where []string
	var args []any
	if f.TenantID != "" {
		if f.IncludeGlobal {
			where = append(where, "(tenant_id = ? OR tenant_id IS NULL)")
		} else {
			where = append(where, "tenant_id = ?")
		}
		args = append(args, f.TenantID)
	}
	if f.ProductLineID != "" {
		where = append(where, "product_line_id = ?")
		args = append(args, f.ProductLineID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Search != "" {
		where = append(where, "text LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}

	q := `SELECT ` + insightCols + ` FROM insights`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RawInsight
	for rows.Next() {
		ins, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	return out, rows.Err()
}

// SetEnrichment writes one enrichment run's output in a single statement:
// text is overwritten, ocr_text is overwritten only when a new value was
// produced (nil keeps the prior value), enrichment_json is always replaced.
func (s *Store) SetEnrichment(ctx context.Context, id, text string, ocrText *string, result json.RawMessage) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE insights
		SET text = ?, ocr_text = COALESCE(?, ocr_text), enrichment_json = ?, enriched_at = ?
		WHERE id = ?`,
		text, ocrText, string(result), time.Now().UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeBefore deletes insights created before the cutoff (ms since epoch)
// and returns the number removed.
func (s *Store) PurgeBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM insights WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Count returns the total insight count for a tenant ("" counts all).
func (s *Store) Count(ctx context.Context, tenantID string) (int, error) {
	var n int
	var err error
	if tenantID == "" {
		err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM insights`).Scan(&n)
	} else {
		err = s.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM insights WHERE tenant_id = ?`, tenantID).Scan(&n)
	}
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInsight(row rowScanner) (*RawInsight, error) {
	var ins RawInsight
	var enrichment sql.NullString
	err := row.Scan(&ins.ID, &ins.TenantID, &ins.ProductLineID, &ins.TerritoryID,
		&ins.Kind, &ins.Text, &ins.AudioURL, &ins.PhotoURL, &ins.OCRText,
		&enrichment, &ins.EnrichedAt, &ins.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if enrichment.Valid && enrichment.String != "" {
		ins.Enrichment = json.RawMessage(enrichment.String)
	}
	return &ins, nil
}

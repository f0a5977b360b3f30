package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a report lookup matches nothing.
var ErrNotFound = errors.New("report: not found")

// Store wraps the weekly report tables and the chunk index.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Insert persists a report.
func (s *Store) Insert(ctx context.Context, r *WeeklyReport) error {
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	heatmap, err := json.Marshal(r.Heatmap)
	if err != nil {
		return fmt.Errorf("report: marshal heatmap: %w", err)
	}
	contributors, err := json.Marshal(r.Contributors)
	if err != nil {
		return fmt.Errorf("report: marshal contributors: %w", err)
	}
	kpi, err := json.Marshal(r.KPI)
	if err != nil {
		return fmt.Errorf("report: marshal kpi: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO weekly_reports
		(id, tenant_id, product_line_id, week_id, executive_summary, ci_summary,
		heatmap_json, contributors_json, kpi_json, html, xlsx_path, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TenantID, r.ProductLineID, r.WeekID, r.ExecutiveSummary, r.CISummary,
		string(heatmap), string(contributors), string(kpi), r.HTML, r.XLSXPath,
		r.Hash, r.CreatedAt)
	return err
}

// Get retrieves a report by id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*WeeklyReport, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, tenant_id, product_line_id, week_id, executive_summary, ci_summary,
		heatmap_json, contributors_json, kpi_json, html, xlsx_path, hash, created_at
		FROM weekly_reports WHERE id = ?`, id)
	return scanReport(row)
}

// List returns reports newest-first. tenantID and productLineID are
// optional filters ("" skips them).
func (s *Store) List(ctx context.Context, tenantID, productLineID string, limit int) ([]*WeeklyReport, error) {
	var where []string
	var args []any
	if tenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, tenantID)
	}
	if productLineID != "" {
		where = append(where, "product_line_id = ?")
		args = append(args, productLineID)
	}
	q := `SELECT id, tenant_id, product_line_id, week_id, executive_summary, ci_summary,
		heatmap_json, contributors_json, kpi_json, html, xlsx_path, hash, created_at
		FROM weekly_reports`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*WeeklyReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// IndexChunks stores a report's text chunks in the FTS index, replacing
// any previous chunks of the same report.
func (s *Store) IndexChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM report_chunks WHERE report_id = ?`, chunks[0].ReportID); err != nil {
		return fmt.Errorf("report: clear chunks: %w", err)
	}
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_chunks
			(chunk_text, report_id, section, week_id, tenant_id, product_line_id, chunk_index)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.Text, c.ReportID, c.Section, c.WeekID, c.TenantID, c.ProductLineID, c.Index); err != nil {
			return fmt.Errorf("report: index chunk: %w", err)
		}
	}
	return tx.Commit()
}

// SearchChunks runs an FTS5 match over indexed chunks, best-ranked first.
// tenantID and productLineID are optional filters.
func (s *Store) SearchChunks(ctx context.Context, query, tenantID, productLineID string, limit int) ([]Chunk, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	q := `SELECT chunk_text, report_id, section, week_id, tenant_id, product_line_id,
		chunk_index, bm25(report_chunks) AS rank
		FROM report_chunks WHERE report_chunks MATCH ?`
	args := []any{match}
	if tenantID != "" {
		q += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}
	if productLineID != "" {
		q += ` AND product_line_id = ?`
		args = append(args, productLineID)
	}
	q += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.Text, &c.ReportID, &c.Section, &c.WeekID,
			&c.TenantID, &c.ProductLineID, &c.Index, &c.Rank); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ftsQuery turns free text into a safe FTS5 query: each term quoted and
// OR-joined, so user punctuation cannot break the match syntax.
func ftsQuery(text string) string {
	fields := strings.Fields(text)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'?!.,;:()`)
		if f == "" {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, ``)+`"`)
	}
	return strings.Join(terms, " OR ")
}

func scanReport(row interface{ Scan(...any) error }) (*WeeklyReport, error) {
	var r WeeklyReport
	var heatmap, contributors, kpi string
	err := row.Scan(&r.ID, &r.TenantID, &r.ProductLineID, &r.WeekID,
		&r.ExecutiveSummary, &r.CISummary, &heatmap, &contributors, &kpi,
		&r.HTML, &r.XLSXPath, &r.Hash, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(heatmap), &r.Heatmap); err != nil {
		return nil, fmt.Errorf("report: corrupt heatmap for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(contributors), &r.Contributors); err != nil {
		return nil, fmt.Errorf("report: corrupt contributors for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(kpi), &r.KPI); err != nil {
		return nil, fmt.Errorf("report: corrupt kpi for %s: %w", r.ID, err)
	}
	return &r, nil
}

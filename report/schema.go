package report

// Schema is the weekly report tables plus the FTS5 chunk index,
// idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS weekly_reports (
    id                TEXT PRIMARY KEY,
    tenant_id         TEXT,
    product_line_id   TEXT NOT NULL,
    week_id           TEXT NOT NULL,
    executive_summary TEXT NOT NULL,
    ci_summary        TEXT NOT NULL DEFAULT '',
    heatmap_json      TEXT NOT NULL DEFAULT '[]',
    contributors_json TEXT NOT NULL DEFAULT '[]',
    kpi_json          TEXT NOT NULL DEFAULT '{}',
    html              TEXT NOT NULL DEFAULT '',
    xlsx_path         TEXT NOT NULL DEFAULT '',
    hash              TEXT NOT NULL DEFAULT '',
    created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_weekly_reports_tenant ON weekly_reports(tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_weekly_reports_week ON weekly_reports(product_line_id, week_id);

-- Report text chunks for retrieval. Metadata columns are unindexed: only
-- chunk_text participates in matching.
CREATE VIRTUAL TABLE IF NOT EXISTS report_chunks USING fts5(
    chunk_text,
    report_id UNINDEXED,
    section UNINDEXED,
    week_id UNINDEXED,
    tenant_id UNINDEXED,
    product_line_id UNINDEXED,
    chunk_index UNINDEXED,
    tokenize='unicode61 remove_diacritics 2'
);
`

package insight

// Schema is the insights table, idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS insights (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT,
    product_line_id TEXT NOT NULL,
    territory_id    TEXT,
    kind            TEXT NOT NULL DEFAULT 'FIELD_INSIGHT',
    text            TEXT NOT NULL DEFAULT '',
    audio_url       TEXT NOT NULL DEFAULT '',
    photo_url       TEXT NOT NULL DEFAULT '',
    ocr_text        TEXT,
    enrichment_json TEXT,
    enriched_at     INTEGER,
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_insights_tenant ON insights(tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_insights_product_line ON insights(product_line_id);
CREATE INDEX IF NOT EXISTS idx_insights_created ON insights(created_at);
`

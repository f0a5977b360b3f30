// Package insight holds the raw field-insight model and its SQLite store.
//
// A RawInsight is the unit of work for the enrichment pipeline: created
// once by the ingestion endpoint, enqueued by id, and later mutated exactly
// once per enrichment run. Only the enrichment fields (text, ocr_text,
// enrichment_json) change after creation.
package insight

import "encoding/json"

// Insight kinds.
const (
	KindFieldInsight     = "FIELD_INSIGHT"
	KindCompetitiveIntel = "COMPETITIVE_INTEL"
)

// ValidKind reports whether kind is one of the known discriminators.
func ValidKind(kind string) bool {
	return kind == KindFieldInsight || kind == KindCompetitiveIntel
}

// RawInsight is one field-collected observation. TenantID is nil for
// globally scoped records (super-admin only). OCRText is nil until an
// enrichment run produces one.
type RawInsight struct {
	ID            string          `json:"id"`
	TenantID      *string         `json:"tenant_id,omitempty"`
	ProductLineID string          `json:"product_line_id"`
	TerritoryID   *string         `json:"territory_id,omitempty"`
	Kind          string          `json:"kind"`
	Text          string          `json:"text"`
	AudioURL      string          `json:"audio_url,omitempty"`
	PhotoURL      string          `json:"photo_url,omitempty"`
	OCRText       *string         `json:"ocr_text,omitempty"`
	Enrichment    json.RawMessage `json:"enrichment,omitempty"`
	EnrichedAt    *int64          `json:"enriched_at,omitempty"` // ms
	CreatedAt     int64           `json:"created_at"`            // ms
}

// Enriched reports whether an enrichment run has written its result.
func (r *RawInsight) Enriched() bool {
	return len(r.Enrichment) > 0
}

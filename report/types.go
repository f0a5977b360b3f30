// Package report aggregates enriched insights into weekly reports, renders
// them to sanitized HTML, exports an XLSX workbook, and indexes the report
// text into an FTS5 table for retrieval-augmented Q&A.
package report

// HeatBin is one territory's insight count in a report heatmap.
type HeatBin struct {
	TerritoryName string `json:"territoryName"`
	Value         int    `json:"value"`
}

// KPI holds the sentiment counters of a report window.
type KPI struct {
	InsightsCount int `json:"insightsCount"`
	Positive      int `json:"positive"`
	Negative      int `json:"negative"`
	Neutral       int `json:"neutral"`
}

// WeeklyReport is one generated report.
type WeeklyReport struct {
	ID               string    `json:"id"`
	TenantID         *string   `json:"tenant_id,omitempty"`
	ProductLineID    string    `json:"product_line_id"`
	WeekID           string    `json:"week_id"` // e.g. "2026-W35"
	ExecutiveSummary string    `json:"executive_summary"`
	CISummary        string    `json:"ci_summary,omitempty"`
	Heatmap          []HeatBin `json:"heatmap"`
	Contributors     []string  `json:"contributors"`
	KPI              KPI       `json:"kpi"`
	HTML             string    `json:"-"`
	XLSXPath         string    `json:"url_xlsx,omitempty"`
	Hash             string    `json:"hash"` // SHA-256 of the rendered HTML
	CreatedAt        int64     `json:"created_at"`
}

// Chunk is one indexed slice of report text, retrievable through FTS5.
type Chunk struct {
	ReportID      string  `json:"report_id"`
	Section       string  `json:"section"` // "executive_summary" or "ci_summary"
	WeekID        string  `json:"week_id"`
	TenantID      string  `json:"tenant_id,omitempty"`
	ProductLineID string  `json:"product_line_id"`
	Index         int     `json:"chunk_index"`
	Text          string  `json:"text"`
	Rank          float64 `json:"rank,omitempty"`
}

// Chunk sections.
const (
	SectionExecutiveSummary = "executive_summary"
	SectionCISummary        = "ci_summary"
)

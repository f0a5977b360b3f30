// Package enrich is the insight enrichment core: a single-consumer FIFO
// queue of insight ids and the processor that turns one raw insight into
// its enriched form (transcription, OCR, anonymization, sentiment).
package enrich

import "github.com/hazyhaar/fieldback/sentiment"

// Diagnostic records one enrichment source that failed. Failed sources
// contribute nothing to the merged text; their errors live here instead,
// so downstream consumers see failures without error markers polluting
// the corpus.
type Diagnostic struct {
	Source string `json:"source"` // "transcription" or "ocr"
	Error  string `json:"error"`
}

// Diagnostic sources.
const (
	SourceTranscription = "transcription"
	SourceOCR           = "ocr"
)

// Result is the enrichment payload persisted on the insight.
type Result struct {
	sentiment.Result
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Degraded reports whether the result came from the failure path and is
// not authoritative.
func (r *Result) Degraded() bool {
	return r.Error != ""
}

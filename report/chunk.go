package report

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	htmltable "github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// Chunking parameters for the retrieval index.
const (
	chunkSize    = 500
	chunkOverlap = 50
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		htmltable.NewTablePlugin(),
	),
)

// htmlToMarkdown converts rendered report HTML into markdown for indexing.
func htmlToMarkdown(html string) (string, error) {
	md, err := mdConverter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("report: html to markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// splitText cuts text into chunks of at most size runes with the given
// overlap, preferring to break at whitespace.
func splitText(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{string(runes)}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}
		// Back off to the last whitespace inside the window.
		cut := end
		for cut > start+size/2 && !isSpace(runes[cut-1]) {
			cut--
		}
		if cut == start+size/2 {
			cut = end
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[start:cut])))
		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}

	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}

// buildChunks splits both report sections into retrievable chunks.
func buildChunks(r *WeeklyReport) []Chunk {
	tenant := ""
	if r.TenantID != nil {
		tenant = *r.TenantID
	}
	var out []Chunk
	add := func(section, text string) {
		for i, piece := range splitText(text, chunkSize, chunkOverlap) {
			out = append(out, Chunk{
				ReportID:      r.ID,
				Section:       section,
				WeekID:        r.WeekID,
				TenantID:      tenant,
				ProductLineID: r.ProductLineID,
				Index:         i,
				Text:          piece,
			})
		}
	}
	add(SectionExecutiveSummary, r.ExecutiveSummary)
	add(SectionCISummary, r.CISummary)
	return out
}

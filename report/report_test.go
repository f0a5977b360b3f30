package report

import (
	"strings"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestSplitTextShort(t *testing.T) {
	got := splitText("breve nota", chunkSize, chunkOverlap)
	if len(got) != 1 || got[0] != "breve nota" {
		t.Fatalf("got %v", got)
	}
	if splitText("", chunkSize, chunkOverlap) != nil {
		t.Fatal("empty input must yield no chunks")
	}
}

func TestSplitTextLong(t *testing.T) {
	word := "parola "
	text := strings.TrimSpace(strings.Repeat(word, 300)) // ~2100 chars

	chunks := splitText(text, chunkSize, chunkOverlap)
	if len(chunks) < 4 {
		t.Fatalf("chunks = %d, want several", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > chunkSize {
			t.Fatalf("chunk %d exceeds size: %d runes", i, len([]rune(c)))
		}
		if c == "" {
			t.Fatalf("chunk %d empty", i)
		}
	}
	// Overlap: consecutive chunks share text.
	tail := chunks[0][len(chunks[0])-20:]
	if !strings.Contains(chunks[1], strings.TrimSpace(tail)) {
		t.Fatalf("no overlap between chunk 0 and 1")
	}
}

func TestRenderHTMLStableHash(t *testing.T) {
	ctx := renderContext{
		WeekID:          "2026-W35",
		TenantName:      "Acme",
		ProductLineName: "Cardio",
		Bullets:         []string{"Obiezioni su dosaggio in crescita"},
		KPI:             KPI{InsightsCount: 3, Positive: 1, Neutral: 2},
		Heatmap:         []HeatBin{{TerritoryName: "Lombardia", Value: 3}},
		GeneratedAt:     "2026-08-31 10:00",
	}
	html, hash, err := renderHTML(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "2026-W35") || !strings.Contains(html, "Lombardia") {
		t.Fatalf("missing content:\n%s", html)
	}
	if !strings.Contains(html, hash) {
		t.Fatal("hash not embedded in footer")
	}

	html2, hash2, err := renderHTML(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if hash2 != hash || html2 != html {
		t.Fatal("render not deterministic for identical context")
	}
}

func TestRenderHTMLStripsMarkup(t *testing.T) {
	ctx := renderContext{
		WeekID:      "2026-W35",
		Bullets:     []string{`<script>alert(1)</script>Nota con markup`},
		GeneratedAt: "2026-08-31 10:00",
	}
	html, _, err := renderHTML(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(html, "<script>") || strings.Contains(html, "alert(1)") {
		t.Fatalf("script survived sanitization:\n%s", html)
	}
	if !strings.Contains(html, "Nota con markup") {
		t.Fatal("legitimate text lost")
	}
}

func TestFTSQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"dosaggio", `"dosaggio"`},
		{"obiezioni sul dosaggio?", `"obiezioni" OR "sul" OR "dosaggio"`},
		{`"quoted" input`, `"quoted" OR "input"`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ftsQuery(tt.in); got != tt.want {
			t.Fatalf("ftsQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWeekIDFormat(t *testing.T) {
	// 2026-08-31 is a Monday in ISO week 36.
	got := WeekID(mustTime(t, "2026-08-31"))
	if got != "2026-W36" {
		t.Fatalf("WeekID = %q", got)
	}
}

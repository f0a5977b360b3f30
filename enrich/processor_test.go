package enrich_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/fieldback/anonymize"
	"github.com/hazyhaar/fieldback/dbopen"
	"github.com/hazyhaar/fieldback/enrich"
	"github.com/hazyhaar/fieldback/fetch"
	"github.com/hazyhaar/fieldback/insight"
	"github.com/hazyhaar/fieldback/sentiment"
	_ "modernc.org/sqlite"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return f.text, f.err
}

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) ExtractText(context.Context, []byte, []string) (string, error) {
	return f.text, f.err
}

func allowAll(string) error { return nil }

type env struct {
	store *insight.Store
	cfg   enrich.ProcessorConfig
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(insight.Schema))
	store := insight.NewStore(db)
	return &env{
		store: store,
		cfg: enrich.ProcessorConfig{
			Insights:   store,
			Fetcher:    fetch.New(fetch.Config{URLValidator: allowAll}),
			Classifier: sentiment.NewClassifier(nil, nil),
		},
	}
}

func decodeResult(t *testing.T, ins *insight.RawInsight) enrich.Result {
	t.Helper()
	var r enrich.Result
	if err := json.Unmarshal(ins.Enrichment, &r); err != nil {
		t.Fatalf("decode enrichment %s: %v", ins.Enrichment, err)
	}
	return r
}

func TestEnrichTextOnly(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	if err := e.store.Insert(ctx, &insight.RawInsight{
		ID: "ins_1", ProductLineID: "pl_1",
		Text: "Contattami a mario.rossi@example.com oppure al numero 3331234567",
	}); err != nil {
		t.Fatal(err)
	}

	p := enrich.NewProcessor(e.cfg)
	if err := p.Enrich(ctx, "ins_1"); err != nil {
		t.Fatal(err)
	}

	got, err := e.store.Get(ctx, "ins_1")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got.Text, "mario.rossi@example.com") ||
		strings.Contains(got.Text, "3331234567") {
		t.Fatalf("PII survived: %q", got.Text)
	}
	if !strings.Contains(got.Text, anonymize.EmailToken) ||
		!strings.Contains(got.Text, anonymize.PhoneToken) {
		t.Fatalf("redaction tokens missing: %q", got.Text)
	}
	if got.OCRText != nil {
		t.Fatalf("OCRText = %v, want nil", got.OCRText)
	}

	r := decodeResult(t, got)
	if r.Sentiment == "" {
		t.Fatal("no sentiment")
	}
	if r.Degraded() || len(r.Diagnostics) != 0 {
		t.Fatalf("unexpected degradation: %+v", r)
	}
}

func TestEnrichMissingIDIsNoop(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	p := enrich.NewProcessor(e.cfg)
	if err := p.Enrich(ctx, "ins_ghost"); err != nil {
		t.Fatalf("missing id must not error, got %v", err)
	}
	n, err := e.store.Count(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("store mutated: %d rows", n)
	}
}

func TestEnrichWithTranscription(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-audio-bytes"))
	}))
	defer srv.Close()

	if err := e.store.Insert(ctx, &insight.RawInsight{
		ID: "ins_1", ProductLineID: "pl_1",
		Text:     "Nota scritta",
		AudioURL: srv.URL + "/a.mp3",
	}); err != nil {
		t.Fatal(err)
	}

	e.cfg.Transcriber = fakeTranscriber{text: "il medico era soddisfatto"}
	p := enrich.NewProcessor(e.cfg)
	if err := p.Enrich(ctx, "ins_1"); err != nil {
		t.Fatal(err)
	}

	got, err := e.store.Get(ctx, "ins_1")
	if err != nil {
		t.Fatal(err)
	}
	want := "Nota scritta\nil medico era soddisfatto"
	if got.Text != want {
		t.Fatalf("Text = %q, want %q", got.Text, want)
	}
	r := decodeResult(t, got)
	if r.Sentiment != sentiment.Positive {
		t.Fatalf("Sentiment = %q", r.Sentiment)
	}
}

func TestEnrichWithOCR(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0xFF, 0xD8, 0xFF, 0x00})
	}))
	defer srv.Close()

	if err := e.store.Insert(ctx, &insight.RawInsight{
		ID: "ins_1", ProductLineID: "pl_1",
		PhotoURL: srv.URL + "/p.jpg",
	}); err != nil {
		t.Fatal(err)
	}

	e.cfg.Extractor = fakeExtractor{text: "listino prezzi concorrente"}
	p := enrich.NewProcessor(e.cfg)
	if err := p.Enrich(ctx, "ins_1"); err != nil {
		t.Fatal(err)
	}

	got, err := e.store.Get(ctx, "ins_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.OCRText == nil || *got.OCRText != "listino prezzi concorrente" {
		t.Fatalf("OCRText = %v", got.OCRText)
	}
	if got.Text != "listino prezzi concorrente" {
		t.Fatalf("Text = %q", got.Text)
	}
}

func TestEnrichPhotoFetchFailure(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	if err := e.store.Insert(ctx, &insight.RawInsight{
		ID: "ins_1", ProductLineID: "pl_1",
		PhotoURL: "http://127.0.0.1:1/p.jpg", // nothing listens here
	}); err != nil {
		t.Fatal(err)
	}

	e.cfg.Extractor = fakeExtractor{text: "never reached"}
	p := enrich.NewProcessor(e.cfg)
	if err := p.Enrich(ctx, "ins_1"); err != nil {
		t.Fatal(err)
	}

	got, err := e.store.Get(ctx, "ins_1")
	if err != nil {
		t.Fatal(err)
	}
	// One commit happened, ocr_text untouched, no error text in the corpus.
	if got.EnrichedAt == nil {
		t.Fatal("no enrichment write")
	}
	if got.OCRText != nil {
		t.Fatalf("OCRText = %v, want nil", got.OCRText)
	}
	if got.Text != "" {
		t.Fatalf("Text = %q, want empty", got.Text)
	}

	r := decodeResult(t, got)
	if len(r.Diagnostics) != 1 || r.Diagnostics[0].Source != enrich.SourceOCR {
		t.Fatalf("Diagnostics = %+v", r.Diagnostics)
	}
	if !strings.Contains(r.Diagnostics[0].Error, "fetch photo") {
		t.Fatalf("diagnostic error = %q", r.Diagnostics[0].Error)
	}
	if r.Sentiment != sentiment.Neutral || r.Confidence != 0 {
		t.Fatalf("sentiment = %+v, want bare neutral", r.Result)
	}
}

func TestEnrichTranscriptionFailureKeepsOtherSources(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes"))
	}))
	defer srv.Close()

	if err := e.store.Insert(ctx, &insight.RawInsight{
		ID: "ins_1", ProductLineID: "pl_1",
		Text:     "visita ottima",
		AudioURL: srv.URL + "/a.mp3",
	}); err != nil {
		t.Fatal(err)
	}

	e.cfg.Transcriber = fakeTranscriber{err: context.DeadlineExceeded}
	p := enrich.NewProcessor(e.cfg)
	if err := p.Enrich(ctx, "ins_1"); err != nil {
		t.Fatal(err)
	}

	got, err := e.store.Get(ctx, "ins_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "visita ottima" {
		t.Fatalf("Text = %q", got.Text)
	}
	r := decodeResult(t, got)
	if len(r.Diagnostics) != 1 || r.Diagnostics[0].Source != enrich.SourceTranscription {
		t.Fatalf("Diagnostics = %+v", r.Diagnostics)
	}
	// The surviving text still gets a real sentiment.
	if r.Sentiment != sentiment.Positive {
		t.Fatalf("Sentiment = %q", r.Sentiment)
	}
}

func TestEnrichReprocessIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	if err := e.store.Insert(ctx, &insight.RawInsight{
		ID: "ins_1", ProductLineID: "pl_1",
		Text: "Scrivi a anna.bianchi@example.com",
	}); err != nil {
		t.Fatal(err)
	}

	p := enrich.NewProcessor(e.cfg)
	if err := p.Enrich(ctx, "ins_1"); err != nil {
		t.Fatal(err)
	}
	first, err := e.store.Get(ctx, "ins_1")
	if err != nil {
		t.Fatal(err)
	}

	// Duplicate enqueue: the second run recomputes from current fields.
	if err := p.Enrich(ctx, "ins_1"); err != nil {
		t.Fatal(err)
	}
	second, err := e.store.Get(ctx, "ins_1")
	if err != nil {
		t.Fatal(err)
	}
	if second.Text != first.Text {
		t.Fatalf("reprocess changed text: %q -> %q", first.Text, second.Text)
	}
}

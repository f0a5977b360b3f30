package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/fieldback/anonymize"
	"github.com/hazyhaar/fieldback/audit"
	"github.com/hazyhaar/fieldback/fetch"
	"github.com/hazyhaar/fieldback/insight"
	"github.com/hazyhaar/fieldback/ocr"
	"github.com/hazyhaar/fieldback/sentiment"
	"github.com/hazyhaar/fieldback/speech"
)

// Processor turns one raw insight into its enriched form. It is the sole
// writer of enrichment fields; the single-consumer queue serializes runs,
// so no locking is needed around the read-modify-write.
type Processor struct {
	insights    *insight.Store
	fetcher     *fetch.Fetcher
	transcriber speech.Transcriber
	extractor   ocr.Extractor
	refiner     *ocr.Refiner
	classifier  *sentiment.Classifier
	events      *audit.Logger
	logger      *slog.Logger

	// language hints passed to transcription and OCR
	language  string
	ocrLangs  []string
}

// ProcessorConfig wires a Processor. Insights, Fetcher and Classifier are
// required; nil Transcriber/Extractor disable the respective source, nil
// Events disables audit.
type ProcessorConfig struct {
	Insights    *insight.Store
	Fetcher     *fetch.Fetcher
	Transcriber speech.Transcriber
	Extractor   ocr.Extractor
	Refiner     *ocr.Refiner
	Classifier  *sentiment.Classifier
	Events      *audit.Logger
	Logger      *slog.Logger
	Language    string   // transcription hint, default "it"
	OCRLangs    []string // OCR hints, default ["ita","eng"]
}

// NewProcessor creates a Processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Language == "" {
		cfg.Language = "it"
	}
	if len(cfg.OCRLangs) == 0 {
		cfg.OCRLangs = []string{"ita", "eng"}
	}
	return &Processor{
		insights:    cfg.Insights,
		fetcher:     cfg.Fetcher,
		transcriber: cfg.Transcriber,
		extractor:   cfg.Extractor,
		refiner:     cfg.Refiner,
		classifier:  cfg.Classifier,
		events:      cfg.Events,
		logger:      cfg.Logger,
		language:    cfg.Language,
		ocrLangs:    cfg.OCRLangs,
	}
}

// Enrich loads the insight, runs every applicable enrichment source,
// anonymizes and classifies the merged text, and persists the outcome in
// one commit. Total failure still persists, with a degraded result, so
// the record never stays in limbo. A missing id is a benign no-op
// (stale or duplicate enqueue).
func (p *Processor) Enrich(ctx context.Context, id string) error {
	ins, err := p.insights.Get(ctx, id)
	if errors.Is(err, insight.ErrNotFound) {
		p.logger.Warn("insight not found, skipping", "insight_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load insight %s: %w", id, err)
	}

	text, ocrOut, result := p.run(ctx, ins)

	raw, err := json.Marshal(result)
	if err != nil {
		// Should not happen; degrade rather than leave the record untouched.
		raw, _ = json.Marshal(Result{Result: sentiment.Degraded(err.Error())})
	}
	if err := p.insights.SetEnrichment(ctx, id, text, ocrOut, raw); err != nil {
		return fmt.Errorf("persist enrichment %s: %w", id, err)
	}

	if p.events != nil {
		opts := []audit.Option{audit.OnEntity(id)}
		if ins.TenantID != nil {
			opts = append(opts, audit.ForTenant(*ins.TenantID))
		}
		p.events.Record(audit.EventInsightEnriched, map[string]any{
			"sentiment":   result.Sentiment,
			"degraded":    result.Degraded(),
			"diagnostics": len(result.Diagnostics),
		}, opts...)
	}
	p.logger.Info("insight enriched", "insight_id", id,
		"sentiment", result.Sentiment, "diagnostics", len(result.Diagnostics))
	return nil
}

// run executes the source fan-out. It never fails: each source failure
// becomes a Diagnostic and the rest of the pipeline continues.
func (p *Processor) run(ctx context.Context, ins *insight.RawInsight) (text string, ocrOut *string, result Result) {
	var sources []string
	if ins.Text != "" {
		sources = append(sources, ins.Text)
	}

	if ins.AudioURL != "" {
		transcript, err := p.transcribe(ctx, ins.AudioURL)
		if err != nil {
			p.logger.Warn("transcription failed", "insight_id", ins.ID, "error", err)
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Source: SourceTranscription, Error: err.Error(),
			})
		} else if transcript != "" {
			sources = append(sources, transcript)
		}
	}

	if ins.PhotoURL != "" {
		extracted, err := p.extractText(ctx, ins.PhotoURL)
		if err != nil {
			p.logger.Warn("ocr failed", "insight_id", ins.ID, "error", err)
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Source: SourceOCR, Error: err.Error(),
			})
		} else if extracted != "" {
			ocrOut = &extracted
			sources = append(sources, extracted)
		}
	}

	merged := mergeSources(sources)
	if merged != "" {
		text = anonymize.Text(merged)
	}

	result.Result = p.classifier.Classify(ctx, text)
	return text, ocrOut, result
}

func (p *Processor) transcribe(ctx context.Context, url string) (string, error) {
	if p.transcriber == nil {
		return "", errors.New("transcription not configured")
	}
	audio, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fetch audio: %w", err)
	}
	transcript, err := p.transcriber.Transcribe(ctx, audio, p.language)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(transcript), nil
}

// extractText fetches the photo, runs OCR, and refines the raw text when
// it is long enough and a refiner is available. Refinement failure falls
// back to the raw OCR text.
func (p *Processor) extractText(ctx context.Context, url string) (string, error) {
	if p.extractor == nil {
		return "", errors.New("ocr not configured")
	}
	image, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fetch photo: %w", err)
	}
	raw, err := p.extractor.ExtractText(ctx, image, p.ocrLangs)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	raw = strings.TrimSpace(raw)

	if len(raw) > ocr.MinRefineLen && p.refiner.Enabled() {
		refined, err := p.refiner.Refine(ctx, raw)
		if err != nil {
			p.logger.Warn("ocr refinement failed, keeping raw text", "error", err)
			return raw, nil
		}
		return strings.TrimSpace(refined), nil
	}
	return raw, nil
}

func mergeSources(sources []string) string {
	var parts []string
	for _, s := range sources {
		if t := strings.TrimSpace(s); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

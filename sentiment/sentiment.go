// Package sentiment produces a coarse sentiment judgment for enriched
// insight text: a lexicon-based heuristic pass that always succeeds, plus
// an optional AI refinement pass whose fields override the heuristic ones
// when it succeeds. Refinement failures are never surfaced to the caller.
package sentiment

import (
	"context"
	"log/slog"
	"math"

	"github.com/hazyhaar/fieldback/llm"
)

// Sentiment labels.
const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
)

// polarityThreshold maps the heuristic score to a label: above +0.1 is
// positive, below -0.1 negative, neutral in between.
const polarityThreshold = 0.1

// Result is the structured sentiment judgment attached to an insight's
// enrichment payload.
type Result struct {
	Sentiment  string `json:"sentiment"`
	Confidence float64 `json:"confidence"`
	// Heuristic-only fields, absent when the text was empty.
	Subjectivity *float64 `json:"subjectivity,omitempty"`
	Polarity     *float64 `json:"polarity_score,omitempty"`
	// AI-refined fields, present only when refinement succeeded.
	KeyTopics []string           `json:"key_topics,omitempty"`
	Emotions  map[string]float64 `json:"emotions"`
	// Error marks a degraded, non-authoritative result.
	Error string `json:"error,omitempty"`
}

// Degraded builds the fallback result recorded when enrichment fails
// entirely: neutral, carrying the failure message.
func Degraded(msg string) Result {
	return Result{Sentiment: Neutral, Emotions: map[string]float64{}, Error: msg}
}

// Classifier runs the two-pass sentiment analysis.
type Classifier struct {
	client *llm.Client
	logger *slog.Logger
}

// NewClassifier creates a Classifier. A disabled llm client (or nil) keeps
// the classifier heuristic-only.
func NewClassifier(client *llm.Client, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{client: client, logger: logger}
}

// Classify analyses text. Empty input short-circuits to a bare neutral
// result without running either pass.
func (c *Classifier) Classify(ctx context.Context, text string) Result {
	if text == "" {
		return Result{Sentiment: Neutral, Confidence: 0, Emotions: map[string]float64{}}
	}

	polarity, subjectivity := Score(text)

	label := Neutral
	switch {
	case polarity > polarityThreshold:
		label = Positive
	case polarity < -polarityThreshold:
		label = Negative
	}

	result := Result{
		Sentiment:    label,
		Confidence:   math.Abs(polarity),
		Subjectivity: &subjectivity,
		Polarity:     &polarity,
		Emotions:     map[string]float64{},
	}

	// Refinement is strictly additive: any failure keeps the heuristic
	// result untouched.
	if c.client.Enabled() {
		if refined, err := c.refine(ctx, text); err == nil {
			result.merge(refined)
		} else {
			c.logger.Warn("sentiment refinement failed, keeping heuristic result", "error", err)
		}
	}

	return result
}

// merge overlays refined fields onto the heuristic result. Only fields the
// refinement actually produced take precedence.
func (r *Result) merge(refined *refinedResult) {
	if refined.Sentiment != "" {
		r.Sentiment = refined.Sentiment
	}
	if refined.Confidence != nil {
		r.Confidence = *refined.Confidence
	}
	if len(refined.KeyTopics) > 0 {
		r.KeyTopics = refined.KeyTopics
	}
	if len(refined.Emotions) > 0 {
		r.Emotions = refined.Emotions
	}
}

package sentiment

import (
	"context"
	"fmt"
)

const refineSystemPrompt = `Sei un analista di sentiment per il settore farmaceutico italiano.
Analizza il testo di una nota di visita sul campo e rispondi SOLO con un oggetto JSON:
{"sentiment": "positive"|"negative"|"neutral", "confidence": 0.0-1.0, "key_topics": ["..."], "emotions": {"fear": 0.0-1.0, "trust": 0.0-1.0, "satisfaction": 0.0-1.0, "concern": 0.0-1.0}}`

// refinedResult is the schema the refinement model must return. Confidence
// is a pointer so an omitted field is distinguishable from zero.
type refinedResult struct {
	Sentiment  string             `json:"sentiment"`
	Confidence *float64           `json:"confidence"`
	KeyTopics  []string           `json:"key_topics"`
	Emotions   map[string]float64 `json:"emotions"`
}

func (c *Classifier) refine(ctx context.Context, text string) (*refinedResult, error) {
	var refined refinedResult
	if err := c.client.CompleteJSON(ctx, refineSystemPrompt, text, 500, &refined); err != nil {
		return nil, err
	}

	switch refined.Sentiment {
	case Positive, Negative, Neutral, "":
	default:
		return nil, fmt.Errorf("unknown sentiment label %q", refined.Sentiment)
	}
	if refined.Confidence != nil && (*refined.Confidence < 0 || *refined.Confidence > 1) {
		return nil, fmt.Errorf("confidence %v out of range", *refined.Confidence)
	}
	return &refined, nil
}

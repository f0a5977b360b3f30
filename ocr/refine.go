package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/fieldback/llm"
)

// refineSystemPrompt steers the model towards correction, not rewriting.
// The corpus is Italian pharmaceutical field notes.
const refineSystemPrompt = "Sei un assistente specializzato nel correggere testo estratto tramite OCR. " +
	"Il testo riguarda il settore farmaceutico e vendite. " +
	"Correggi errori di riconoscimento mantenendo il significato originale. " +
	"Rispondi solo con il testo corretto, senza spiegazioni."

// Refiner corrects OCR recognition errors through a language model.
// Refinement is strictly best-effort: callers keep the raw text when
// Refine fails or the model is not configured.
type Refiner struct {
	client *llm.Client
}

// NewRefiner creates a Refiner. A nil client yields a disabled Refiner.
func NewRefiner(client *llm.Client) *Refiner {
	return &Refiner{client: client}
}

// Enabled reports whether the underlying model is configured.
func (r *Refiner) Enabled() bool {
	return r != nil && r.client.Enabled()
}

// Refine sends raw OCR text for correction and returns the corrected text.
func (r *Refiner) Refine(ctx context.Context, raw string) (string, error) {
	if !r.Enabled() {
		return "", llm.ErrDisabled
	}
	corrected, err := r.client.Complete(ctx, refineSystemPrompt,
		"Correggi questo testo OCR:\n\n"+raw, 500)
	if err != nil {
		return "", fmt.Errorf("refine: %w", err)
	}
	return strings.TrimSpace(corrected), nil
}

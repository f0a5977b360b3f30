// Package qa answers free-form questions about historical weekly reports.
// When a language model is configured it runs retrieval-augmented
// generation over the FTS-indexed report chunks; otherwise it falls back
// to a keyword scan of the report summaries.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/fieldback/llm"
	"github.com/hazyhaar/fieldback/report"
)

// ErrEmptyQuery is returned when the question contains no searchable text.
var ErrEmptyQuery = errors.New("qa: empty query")

const systemPrompt = "Sei un assistente esperto del settore farmaceutico che risponde a domande " +
	"basandoti sui report di campo forniti. Rispondi in italiano, sii preciso e " +
	"cita i dati specifici quando possibile. Se i dati non sono sufficienti, " +
	"dillo chiaramente."

const (
	retrieveLimit = 5
	contextTop    = 3
	answerTokens  = 500
)

// Question is one Q&A request, scoped like every other read in the system.
type Question struct {
	Query         string `json:"query"`
	TenantID      string `json:"tenantId,omitempty"`
	ProductLineID string `json:"productLineId,omitempty"`
	IncludeCI     bool   `json:"includeCI,omitempty"`
}

// Citation points at the report text an answer was grounded on.
type Citation struct {
	ReportID string  `json:"reportId"`
	Section  string  `json:"section"`
	WeekID   string  `json:"weekId"`
	Score    float64 `json:"score,omitempty"`
}

// Answer is the generated (or fallback) response with its citations.
type Answer struct {
	Answer      string     `json:"answer"`
	Citations   []Citation `json:"citations"`
	ContextUsed int        `json:"context_used,omitempty"`
}

// Service answers questions over the report store.
type Service struct {
	reports *report.Store
	model   *llm.Client
	logger  *slog.Logger
}

// NewService wires a Q&A service. model may be nil, in which case every
// question takes the keyword-search path.
func NewService(reports *report.Store, model *llm.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reports: reports, model: model, logger: logger}
}

// Ask answers one question. Retrieval and generation failures degrade to
// the keyword fallback instead of surfacing as errors; only an empty query
// or a storage failure is an error.
func (s *Service) Ask(ctx context.Context, q Question) (*Answer, error) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	if s.model.Enabled() {
		ans, err := s.askRAG(ctx, query, q)
		if err == nil {
			return ans, nil
		}
		s.logger.Warn("qa generation failed, using keyword fallback", "error", err)
	}
	return s.askKeyword(ctx, query, q)
}

func (s *Service) askRAG(ctx context.Context, query string, q Question) (*Answer, error) {
	chunks, err := s.reports.SearchChunks(ctx, query, q.TenantID, q.ProductLineID, retrieveLimit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, errors.New("no indexed context")
	}

	var docs []string
	var citations []Citation
	for _, c := range chunks {
		citations = append(citations, Citation{
			ReportID: c.ReportID,
			Section:  c.Section,
			WeekID:   c.WeekID,
			Score:    c.Rank,
		})
		if len(docs) < contextTop {
			docs = append(docs, c.Text)
		}
	}
	if len(citations) > contextTop {
		citations = citations[:contextTop]
	}

	user := fmt.Sprintf("Contesto dai report:\n%s\n\nDomanda: %s",
		strings.Join(docs, "\n\n"), query)
	answer, err := s.model.Complete(ctx, systemPrompt, user, answerTokens)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	s.logger.Info("qa answered", "query", truncate(query, 50), "context_used", len(docs))
	return &Answer{Answer: answer, Citations: citations, ContextUsed: len(docs)}, nil
}

// askKeyword scans the newest report summaries for the query terms and
// assembles an extractive answer.
func (s *Service) askKeyword(ctx context.Context, query string, q Question) (*Answer, error) {
	reports, err := s.reports.List(ctx, q.TenantID, q.ProductLineID, retrieveLimit)
	if err != nil {
		return nil, fmt.Errorf("qa: list reports: %w", err)
	}

	terms := strings.Fields(strings.ToLower(query))
	var hits []*report.WeeklyReport
	for _, r := range reports {
		body := strings.ToLower(r.ExecutiveSummary)
		if q.IncludeCI {
			body += "\n" + strings.ToLower(r.CISummary)
		}
		if matchesAny(body, terms) {
			hits = append(hits, r)
		}
	}
	if len(hits) == 0 {
		return &Answer{
			Answer:    "Non ho trovato informazioni rilevanti per la tua domanda. Prova a riformulare o usa termini più generali.",
			Citations: []Citation{},
		}, nil
	}
	if len(hits) > contextTop {
		hits = hits[:contextTop]
	}

	var parts []string
	var citations []Citation
	for _, r := range hits {
		citations = append(citations, Citation{
			ReportID: r.ID,
			Section:  report.SectionExecutiveSummary,
			WeekID:   r.WeekID,
		})
		if lines := relevantLines(r.ExecutiveSummary, terms, 2); len(lines) > 0 {
			parts = append(parts, fmt.Sprintf("**Settimana %s**: %s", r.WeekID, strings.Join(lines, " ")))
		}
	}

	answer := fmt.Sprintf("Ho trovato %d report correlati ma potrebbero non essere direttamente rilevanti alla tua domanda specifica.", len(hits))
	if len(parts) > 0 {
		answer = "Ecco cosa ho trovato:\n\n" + strings.Join(parts, "\n\n")
	}
	return &Answer{Answer: answer, Citations: citations}, nil
}

func matchesAny(body string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(body, t) {
			return true
		}
	}
	return false
}

// relevantLines picks up to max summary lines containing a query term.
func relevantLines(summary string, terms []string, max int) []string {
	var out []string
	for _, line := range strings.Split(summary, "\n") {
		lower := strings.ToLower(line)
		if matchesAny(lower, terms) {
			out = append(out, strings.TrimSpace(line))
			if len(out) == max {
				break
			}
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

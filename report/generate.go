package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/fieldback/audit"
	"github.com/hazyhaar/fieldback/catalog"
	"github.com/hazyhaar/fieldback/idgen"
	"github.com/hazyhaar/fieldback/insight"
	"github.com/hazyhaar/fieldback/sentiment"
)

// maxBullets caps the executive summary length.
const maxBullets = 8

// Generator aggregates recent insights of a product line into a weekly
// report, persists it, and indexes its text for Q&A retrieval.
type Generator struct {
	reports  *Store
	insights *insight.Store
	catalog  *catalog.Store
	events   *audit.Logger
	logger   *slog.Logger
	newID    idgen.Generator
	outDir   string
	window   int
}

// GeneratorConfig wires a Generator. Reports and Insights are required.
// OutDir "" disables the XLSX export; Window defaults to 20 insights.
type GeneratorConfig struct {
	Reports  *Store
	Insights *insight.Store
	Catalog  *catalog.Store
	Events   *audit.Logger
	Logger   *slog.Logger
	NewID    idgen.Generator
	OutDir   string
	Window   int
}

// NewGenerator creates a Generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.Prefixed("rep_", idgen.Default)
	}
	if cfg.Window <= 0 {
		cfg.Window = 20
	}
	return &Generator{
		reports:  cfg.Reports,
		insights: cfg.Insights,
		catalog:  cfg.Catalog,
		events:   cfg.Events,
		logger:   cfg.Logger,
		newID:    cfg.NewID,
		outDir:   cfg.OutDir,
		window:   cfg.Window,
	}
}

// WeekID formats a time as an ISO week id, e.g. "2026-W35".
func WeekID(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// Generate builds and persists the report for one product line. tenantID
// nil produces a globally scoped report; weekID "" means the current ISO
// week.
func (g *Generator) Generate(ctx context.Context, tenantID *string, productLineID, weekID string) (*WeeklyReport, error) {
	if weekID == "" {
		weekID = WeekID(time.Now())
	}

	filter := insight.Filter{ProductLineID: productLineID, Limit: g.window}
	if tenantID != nil {
		filter.TenantID = *tenantID
	}
	insights, err := g.insights.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("report: list insights: %w", err)
	}

	agg := aggregate(insights)
	rep := &WeeklyReport{
		ID:               g.newID(),
		TenantID:         tenantID,
		ProductLineID:    productLineID,
		WeekID:           weekID,
		ExecutiveSummary: joinBullets(agg.bullets),
		CISummary:        joinBullets(agg.ciBullets),
		Heatmap:          agg.heatmap,
		Contributors:     []string{},
		KPI:              agg.kpi,
	}

	tenantName, lineName := g.resolveNames(ctx, tenantID, productLineID)
	html, hash, err := renderHTML(renderContext{
		WeekID:          weekID,
		TenantName:      tenantName,
		ProductLineName: lineName,
		Bullets:         agg.bullets,
		CIBullets:       agg.ciBullets,
		KPI:             agg.kpi,
		Heatmap:         agg.heatmap,
	})
	if err != nil {
		return nil, err
	}
	rep.HTML = html
	rep.Hash = hash

	if g.outDir != "" {
		path, err := writeXLSX(rep, g.outDir)
		if err != nil {
			g.logger.Warn("xlsx export failed", "report_id", rep.ID, "error", err)
		} else {
			rep.XLSXPath = path
		}
	}

	if err := g.reports.Insert(ctx, rep); err != nil {
		return nil, fmt.Errorf("report: persist: %w", err)
	}

	// Retrieval indexing is best-effort: a failed index never fails the
	// report itself.
	if err := g.index(ctx, rep); err != nil {
		g.logger.Warn("report indexing failed", "report_id", rep.ID, "error", err)
	}

	if g.events != nil {
		opts := []audit.Option{audit.OnEntity(rep.ID)}
		if tenantID != nil {
			opts = append(opts, audit.ForTenant(*tenantID))
		}
		g.events.Record(audit.EventReportGenerated, map[string]any{
			"week_id": weekID, "insights": agg.kpi.InsightsCount,
		}, opts...)
	}
	g.logger.Info("weekly report generated", "report_id", rep.ID,
		"week_id", weekID, "product_line_id", productLineID,
		"insights", agg.kpi.InsightsCount)
	return rep, nil
}

// GenerateAll runs Generate for every active product line of every tenant.
// Per-line failures are logged and skipped.
func (g *Generator) GenerateAll(ctx context.Context, weekID string) (int, error) {
	if g.catalog == nil {
		return 0, fmt.Errorf("report: catalog required for GenerateAll")
	}
	tenants, err := g.catalog.ListTenants(ctx)
	if err != nil {
		return 0, fmt.Errorf("report: list tenants: %w", err)
	}

	generated := 0
	for _, ten := range tenants {
		lines, err := g.catalog.ListProductLines(ctx, ten.ID, true)
		if err != nil {
			g.logger.Error("list product lines failed", "tenant_id", ten.ID, "error", err)
			continue
		}
		for _, line := range lines {
			id := ten.ID
			if _, err := g.Generate(ctx, &id, line.ID, weekID); err != nil {
				g.logger.Error("report generation failed",
					"tenant_id", ten.ID, "product_line_id", line.ID, "error", err)
				continue
			}
			generated++
		}
	}
	return generated, nil
}

func (g *Generator) index(ctx context.Context, rep *WeeklyReport) error {
	// Chunk the markdown rendition of what was actually published.
	md, err := htmlToMarkdown(rep.HTML)
	if err != nil {
		return err
	}
	indexed := *rep
	if md != "" {
		indexed.ExecutiveSummary = md
		indexed.CISummary = ""
	}
	return g.reports.IndexChunks(ctx, buildChunks(&indexed))
}

func (g *Generator) resolveNames(ctx context.Context, tenantID *string, productLineID string) (tenantName, lineName string) {
	tenantName, lineName = "Globale", productLineID
	if g.catalog == nil {
		if tenantID != nil {
			tenantName = *tenantID
		}
		return
	}
	if tenantID != nil {
		if t, err := g.catalog.GetTenant(ctx, *tenantID); err == nil {
			tenantName = t.Name
		} else {
			tenantName = *tenantID
		}
	}
	if p, err := g.catalog.GetProductLine(ctx, productLineID); err == nil {
		lineName = p.Name
	}
	return
}

type aggregation struct {
	bullets   []string
	ciBullets []string
	heatmap   []HeatBin
	kpi       KPI
}

// aggregate folds the insight window into bullets, sentiment counters and
// the territory heatmap. Field insights feed the executive summary,
// competitive intel feeds its own section.
func aggregate(insights []*insight.RawInsight) aggregation {
	agg := aggregation{kpi: KPI{InsightsCount: len(insights)}}

	bins := map[string]int{}
	var order []string
	for _, ins := range insights {
		if ins.Text != "" {
			b := truncate(ins.Text, 160)
			if ins.Kind == insight.KindCompetitiveIntel {
				agg.ciBullets = append(agg.ciBullets, b)
			} else if len(agg.bullets) < maxBullets {
				agg.bullets = append(agg.bullets, b)
			}
		}
		if ins.Enriched() {
			var r sentiment.Result
			if err := json.Unmarshal(ins.Enrichment, &r); err == nil {
				switch r.Sentiment {
				case sentiment.Positive:
					agg.kpi.Positive++
				case sentiment.Negative:
					agg.kpi.Negative++
				default:
					agg.kpi.Neutral++
				}
			}
		}

		key := "n/a"
		if ins.TerritoryID != nil && *ins.TerritoryID != "" {
			key = *ins.TerritoryID
		}
		if _, seen := bins[key]; !seen {
			order = append(order, key)
		}
		bins[key]++
	}

	if len(agg.bullets) == 0 {
		agg.bullets = []string{"Nessun dato"}
	}
	for _, k := range order {
		agg.heatmap = append(agg.heatmap, HeatBin{TerritoryName: k, Value: bins[k]})
	}
	return agg
}

func joinBullets(bullets []string) string {
	return strings.Join(bullets, "\n")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

package report

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// reportTemplate is the weekly report layout. Every dynamic value passes
// through html/template escaping; user-sourced bullets are additionally
// stripped of markup before rendering.
const reportTemplate = `<!DOCTYPE html>
<html lang="it">
<head>
<meta charset="utf-8">
<title>Report settimanale {{.WeekID}} — {{.TenantName}} / {{.ProductLineName}}</title>
</head>
<body>
<h1>Report settimanale {{.WeekID}}</h1>
<p>{{.TenantName}} — {{.ProductLineName}}</p>

<h2>Sintesi</h2>
<ul>
{{range .Bullets}}<li>{{.}}</li>
{{end}}</ul>

<h2>KPI</h2>
<table>
<tr><td>Insight totali</td><td>{{.KPI.InsightsCount}}</td></tr>
<tr><td>Positivi</td><td>{{.KPI.Positive}}</td></tr>
<tr><td>Negativi</td><td>{{.KPI.Negative}}</td></tr>
<tr><td>Neutri</td><td>{{.KPI.Neutral}}</td></tr>
</table>

<h2>Distribuzione territoriale</h2>
<table>
{{range .Heatmap}}<tr><td>{{.TerritoryName}}</td><td>{{.Value}}</td></tr>
{{end}}</table>

{{if .CIBullets}}<h2>Intelligence competitiva</h2>
<ul>
{{range .CIBullets}}<li>{{.}}</li>
{{end}}</ul>
{{end}}
<footer>
<p>Generato: {{.GeneratedAt}}</p>
<p>Hash documento: {{.DocHash}}</p>
</footer>
</body>
</html>
`

var (
	reportTmpl  = template.Must(template.New("weekly_report").Parse(reportTemplate))
	stripPolicy = bluemonday.StrictPolicy()
)

type renderContext struct {
	WeekID          string
	TenantName      string
	ProductLineName string
	Bullets         []string
	CIBullets       []string
	KPI             KPI
	Heatmap         []HeatBin
	GeneratedAt     string
	DocHash         string
}

// renderHTML renders the report twice: once without the hash to compute
// the SHA-256 of the content, then with the hash embedded in the footer.
func renderHTML(ctx renderContext) (html, hash string, err error) {
	ctx.Bullets = sanitizeAll(ctx.Bullets)
	ctx.CIBullets = sanitizeAll(ctx.CIBullets)
	if ctx.GeneratedAt == "" {
		ctx.GeneratedAt = time.Now().Format("2006-01-02 15:04")
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, ctx); err != nil {
		return "", "", fmt.Errorf("report: render: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	ctx.DocHash = hex.EncodeToString(sum[:])

	buf.Reset()
	if err := reportTmpl.Execute(&buf, ctx); err != nil {
		return "", "", fmt.Errorf("report: render: %w", err)
	}
	return buf.String(), ctx.DocHash, nil
}

func sanitizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(stripPolicy.Sanitize(s)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

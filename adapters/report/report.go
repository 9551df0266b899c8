// Package report renders a matching run as markdown and HTML.
package report

import (
	"fmt"
	"strings"

	"gomatch/domain/matching"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// pairListLimit caps the matched pair table so reports on large cohorts
// stay readable.
const pairListLimit = 50

// Builder turns run artifacts into human-readable reports.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Markdown renders the run as a markdown document.
func (b *Builder) Markdown(run *matching.RunArtifact) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Matching Run %s\n\n", run.RunID)
	fmt.Fprintf(&sb, "Generated %s\n\n", run.CreatedAt.Time().Format("2006-01-02 15:04:05 MST"))

	sb.WriteString("## Cohort\n\n")
	fmt.Fprintf(&sb, "| | |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Treated | %d |\n", run.TreatedCount)
	fmt.Fprintf(&sb, "| Controls | %d |\n", run.ControlCount)
	fmt.Fprintf(&sb, "| Covariates | %d |\n", run.CovariateCount)
	fmt.Fprintf(&sb, "| Matched pairs | %d |\n", len(run.Pairs))
	fmt.Fprintf(&sb, "| Fingerprint | `%s` |\n", run.Fingerprint)
	fmt.Fprintf(&sb, "| Runtime | %d ms |\n\n", run.RuntimeMs)

	b.writeTestSection(&sb, run)
	b.writeBalanceSection(&sb, run)
	b.writePairSection(&sb, run)

	return sb.String()
}

func (b *Builder) writeTestSection(sb *strings.Builder, run *matching.RunArtifact) {
	sb.WriteString("## Outcome Test\n\n")
	if run.Test == nil {
		if run.TestSkipped != "" {
			fmt.Fprintf(sb, "Skipped: %s\n\n", run.TestSkipped)
		} else {
			sb.WriteString("Not performed.\n\n")
		}
		return
	}
	sb.WriteString("Wilcoxon signed-rank test on matched outcome differences.\n\n")
	sb.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(sb, "| Statistic | %.4f |\n", run.Test.Statistic)
	fmt.Fprintf(sb, "| P-value | %.6g |\n", run.Test.PValue)
	fmt.Fprintf(sb, "| Pairs tested | %d |\n", run.Test.Pairs)
	fmt.Fprintf(sb, "| Zero differences dropped | %d |\n", run.Test.Zeros)
	fmt.Fprintf(sb, "| Method | %s |\n\n", run.Test.Method)
}

func (b *Builder) writeBalanceSection(sb *strings.Builder, run *matching.RunArtifact) {
	if len(run.Balance) == 0 {
		return
	}
	sb.WriteString("## Covariate Balance\n\n")
	sb.WriteString("Standardized mean differences before and after matching.\n\n")
	sb.WriteString("| Covariate | SMD before | SMD after | Mean treated | Mean control |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, row := range run.Balance {
		fmt.Fprintf(sb, "| %s | %.4f | %.4f | %.4f | %.4f |\n",
			row.Covariate, row.SMDBefore, row.SMDAfter, row.MeanTreat, row.MeanContr)
	}
	sb.WriteString("\n")
}

func (b *Builder) writePairSection(sb *strings.Builder, run *matching.RunArtifact) {
	if len(run.Pairs) == 0 {
		return
	}
	sb.WriteString("## Matched Pairs\n\n")
	limit := len(run.Pairs)
	if limit > pairListLimit {
		limit = pairListLimit
	}
	sb.WriteString("| Treated | Control | Distance |\n|---|---|---|\n")
	for _, p := range run.Pairs[:limit] {
		fmt.Fprintf(sb, "| %s | %s | %.6f |\n", p.TreatedID, p.ControlID, p.Distance)
	}
	if limit < len(run.Pairs) {
		fmt.Fprintf(sb, "\n%d additional pairs omitted.\n", len(run.Pairs)-limit)
	}
	sb.WriteString("\n")
}

// HTML renders the markdown report as an HTML fragment.
func (b *Builder) HTML(run *matching.RunArtifact) []byte {
	md := []byte(b.Markdown(run))
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.ToHTML(md, p, renderer)
}

package report

import (
	"fmt"
	"strings"

	"argus/internal/chain"
	"argus/internal/heuristics"
)

const (
	// maxListed caps per-category and per-kind lines; the full data stays in
	// the downloads dir and the history store.
	maxListed      = 10
	maxSlitherSize = 5000
)

type MarkdownGenerator struct{}

func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{}
}

// Generate renders the audit snapshot as markdown.
func (g *MarkdownGenerator) Generate(report *Report) (string, error) {
	var sb strings.Builder

	sb.WriteString("# Smart Contract Audit Snapshot\n\n")
	sb.WriteString(fmt.Sprintf("- Address: `%s`\n", report.Address))
	sb.WriteString(fmt.Sprintf("- Chain: `%s`\n", report.Chain))
	if report.Implementation != "" {
		sb.WriteString(fmt.Sprintf("- Implementation: `%s`\n", report.Implementation))
	}
	sb.WriteString(fmt.Sprintf("- Scan Time: %s\n", report.ScanTime.Format("2006-01-02 15:04:05")))
	if report.ToBlock > 0 {
		sb.WriteString(fmt.Sprintf("- Block Range: %d - %d\n", report.FromBlock, report.ToBlock))
	}

	sb.WriteString("\n## Heuristic Source Findings\n\n")
	for _, category := range heuristics.Categories {
		findings := report.Findings[category]
		sb.WriteString(fmt.Sprintf("- %s: %d\n", category, len(findings)))
		for i, f := range findings {
			if i >= maxListed {
				break
			}
			sb.WriteString(fmt.Sprintf("  - L%d: %s\n", f.Line, f.Text))
		}
	}

	if report.Slither != "" {
		sb.WriteString("\n## Slither Summary (truncated)\n\n")
		sb.WriteString("```\n")
		out := report.Slither
		if len(out) > maxSlitherSize {
			out = out[:maxSlitherSize]
		}
		sb.WriteString(out)
		sb.WriteString("\n```\n")
	}

	if report.LogScan != nil {
		sb.WriteString("\n## On-chain Events (batched scan)\n\n")
		for _, kind := range chain.EventKinds {
			events := report.LogScan.Events[kind]
			sb.WriteString(fmt.Sprintf("- %s: %d\n", kind, len(events)))
			for i, ev := range events {
				if i >= maxListed {
					break
				}
				sb.WriteString(fmt.Sprintf("  - blk %d tx %s\n", ev.BlockNumber, ev.TxHash.Hex()))
			}
		}
		if report.LogScan.SkippedWindows > 0 {
			sb.WriteString(fmt.Sprintf("\n%d of %d log windows failed and were skipped; event counts are a lower bound.\n",
				report.LogScan.SkippedWindows, report.LogScan.Windows))
		}
	}

	sb.WriteString("\n## Notes\n- This is an automated snapshot to guide manual review, not a full audit.\n")

	return sb.String(), nil
}

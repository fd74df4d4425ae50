package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/privaudit/privaudit/internal/analysis"
)

var (
	headerColor   = color.New(color.FgCyan, color.Bold)
	criticalColor = color.New(color.FgRed, color.Bold)
	highColor     = color.New(color.FgRed)
	mediumColor   = color.New(color.FgYellow)
	lowColor      = color.New(color.FgWhite)
	okColor       = color.New(color.FgGreen)
)

// PrintSummary writes a human-readable rollup of the report.
// partialSummary is the collection outcome line, e.g.
// "6 of 8 services returned data"; empty to omit.
func PrintSummary(w io.Writer, rep analysis.Report, partialSummary string) {
	headerColor.Fprintf(w, "\n%s - %s\n", rep.Metadata.ReportType, rep.Metadata.OrganizationName)
	fmt.Fprintf(w, "Generated %s (audit version %s)\n", rep.Metadata.GeneratedDate, rep.Metadata.AuditVersion)
	if partialSummary != "" {
		fmt.Fprintf(w, "Collection: %s\n", partialSummary)
	}
	for _, errLine := range rep.CollectionErrors {
		mediumColor.Fprintf(w, "  collection error: %s\n", errLine)
	}

	fmt.Fprintf(w, "\nAssignments: %d across %d services, %d unique users\n",
		rep.Metadata.TotalAssignments, rep.Metadata.ServicesAudited, rep.Metadata.UniqueUsers)
	for _, entry := range rep.Summary.ServiceBreakdown {
		fmt.Fprintf(w, "  %-24s %5d (%.2f%%)\n", entry.Service, entry.Count, entry.Percentage)
	}

	alerts := rep.SecurityAlerts
	fmt.Fprintln(w)
	printAlertBlock(w, criticalColor, "CRITICAL", alerts.Critical)
	printAlertBlock(w, highColor, "HIGH", alerts.High)
	printAlertBlock(w, mediumColor, "MEDIUM", alerts.Medium)
	printAlertBlock(w, lowColor, "LOW", alerts.Low)
	if len(alerts.Critical)+len(alerts.High)+len(alerts.Medium)+len(alerts.Low) == 0 {
		okColor.Fprintln(w, "No security alerts.")
	}

	if len(rep.ComplianceGaps) > 0 {
		headerColor.Fprintf(w, "\nCompliance gaps (%d)\n", len(rep.ComplianceGaps))
		for _, gap := range rep.ComplianceGaps {
			fmt.Fprintf(w, "  [%s] %s: %s\n", gap.Severity, gap.Category, gap.Issue)
		}
	}

	if len(rep.Recommendations) > 0 {
		headerColor.Fprintf(w, "\nRecommendations\n")
		for _, rec := range rep.Recommendations {
			fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
	fmt.Fprintln(w)
}

func printAlertBlock(w io.Writer, c *color.Color, label string, alerts []string) {
	if len(alerts) == 0 {
		return
	}
	c.Fprintf(w, "%s (%d)\n", label, len(alerts))
	for _, alert := range alerts {
		fmt.Fprintf(w, "  - %s\n", alert)
	}
}

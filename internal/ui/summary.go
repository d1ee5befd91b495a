// Package ui renders the validation report for humans. The rendered text
// is ancillary; the machine-readable result is the report value itself.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/probelab/otaguard/internal/validate"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func verdict(pass bool) string {
	if pass {
		return passStyle.Render("PASS")
	}
	return failStyle.Render("FAIL")
}

// Summary renders the per-check table and the overall verdict. runID tags
// the header; pass an empty string to omit it.
func Summary(rep validate.Report, runID string) string {
	var b strings.Builder
	rule := borderStyle.Render(strings.Repeat("─", 44))

	b.WriteString(rule + "\n")
	title := "staged-image validation report"
	if runID != "" {
		title += dimStyle.Render("  run " + runID)
	}
	b.WriteString(headerStyle.Render(title) + "\n")
	b.WriteString(rule + "\n")

	line := func(name, v, extra string) {
		fmt.Fprintf(&b, "  %-20s %s", name, v)
		if extra != "" {
			b.WriteString("  " + dimStyle.Render(extra))
		}
		b.WriteByte('\n')
	}

	haltExtra := ""
	if rep.HaltSuccess {
		haltExtra = fmt.Sprintf("pc=0x%08X sp=0x%08X", rep.PCAtHalt, rep.SPAtHalt)
	}
	line("core halt", verdict(rep.HaltSuccess), haltExtra)
	line("metadata valid", verdict(rep.MetadataValid), fmt.Sprintf("state=0x%02X", rep.OTAState))
	line("crc32 match", verdict(rep.CRCValid),
		fmt.Sprintf("calculated=0x%08X stored=0x%08X", rep.CalculatedCRC, rep.StoredCRC))
	line("sha-256 match", verdict(rep.HashValid), "")
	line("boot vector sane", verdict(rep.BootVectorSane), "")
	line("no pending faults", verdict(rep.NoHardfaultPending),
		fmt.Sprintf("cfsr=0x%08X", rep.FaultStatus))
	for _, f := range validate.DecodeFaults(rep.FaultStatus) {
		b.WriteString("        " + failStyle.Render("→ ") + dimStyle.Render(f) + "\n")
	}
	line("version monotonic", verdict(rep.VersionMonotonic), "")

	b.WriteString(rule + "\n")
	overall := failStyle.Render("OVERALL: FAIL")
	if rep.Pass() {
		overall = passStyle.Render("OVERALL: PASS")
	}
	b.WriteString("  " + overall + "\n")
	b.WriteString(rule + "\n")
	return b.String()
}

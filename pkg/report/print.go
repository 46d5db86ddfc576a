package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const title = "==================== Report ===================="

// Print writes the summary of rep to w. term is the search expression as
// given by the user. In verbose mode the full structure follows the
// summary.
func Print(w io.Writer, rep *Report, term string, verbose bool) error {
	// The renderer inspects w itself, so redirected output stays plain.
	titleStyle := lipgloss.NewRenderer(w).NewStyle().Bold(true)

	s := rep.Summary()

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Regular Expression: %s\n", term)
	fmt.Fprintf(&b, "Number of Expressions: %d\n", s.Terms)
	fmt.Fprintf(&b, "Number of Hosts Searched: %d\n", s.Hosts)
	fmt.Fprintf(&b, "Number of Log Files Searched: %d\n", s.Files)
	fmt.Fprintf(&b, "Number of lines where above condition was met: %d\n", s.Lines)
	if s.Unreachable > 0 {
		fmt.Fprintf(&b, "Number of Unreachable Hosts: %d\n", s.Unreachable)
	}
	b.WriteString("\n")

	if verbose {
		writeTree(&b, rep)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeTree(b *strings.Builder, rep *Report) {
	for _, term := range rep.Terms() {
		fmt.Fprintf(b, "%s\n", term)
		for _, host := range rep.Hosts(term) {
			fmt.Fprintf(b, "  %s\n", host)
			for _, file := range rep.Files(term, host) {
				ms, _ := rep.Matches(term, host, file)
				fmt.Fprintf(b, "    %s (%d)\n", file, len(ms))
				for _, m := range ms {
					fmt.Fprintf(b, "      %d: %s\n", m.Line, m.Text)
				}
			}
		}
	}
	if hosts := rep.Unreachable(); len(hosts) > 0 {
		b.WriteString("unreachable\n")
		for _, h := range hosts {
			fmt.Fprintf(b, "  %s\n", h)
		}
	}
}

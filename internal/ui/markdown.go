package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/kokistudios/xlmatch/internal/app"
)

func RenderMarkdown(md string) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		// Fallback: print raw
		fmt.Fprintln(os.Stderr, md)
		return
	}

	out, err := renderer.Render(md)
	if err != nil {
		fmt.Fprintln(os.Stderr, md)
		return
	}

	fmt.Fprint(os.Stderr, out)
}

// StatusReport is the input to StatusMarkdown.
type StatusReport struct {
	Home     string
	Snapshot app.Snapshot
	// Latest caps how many results are listed.
	Latest int
}

// StatusMarkdown renders a status report as markdown.
func StatusMarkdown(r StatusReport) string {
	var b strings.Builder
	s := r.Snapshot

	b.WriteString("# xlmatch status\n\n")
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Status | `%s` |\n", s.Status)
	fmt.Fprintf(&b, "| Reference rows | %d |\n", s.ReferenceCount)
	fmt.Fprintf(&b, "| Results | %d |\n", len(s.Results))
	fmt.Fprintf(&b, "| Home | `%s` |\n", r.Home)

	if len(s.Results) == 0 {
		b.WriteString("\n_" + EmptyLedgerHint + "_\n")
		return b.String()
	}

	latest := r.Latest
	if latest <= 0 || latest > len(s.Results) {
		latest = len(s.Results)
	}
	b.WriteString("\n## Latest results\n\n")
	for _, m := range s.Results[:latest] {
		fmt.Fprintf(&b, "- **%s** → %s\n", escapeMarkdown(m.Key), escapeMarkdown(m.Value))
	}
	if rest := len(s.Results) - latest; rest > 0 {
		fmt.Fprintf(&b, "\n…and %d more.\n", rest)
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "|", `\|`)

func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }

package output

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/gkontridze/reorg/internal/sync"
)

const (
	defaultMarkdownWidth = 80
	minMarkdownWidth     = 20
)

// TerminalWidth returns the current terminal width or a fallback when unavailable.
func TerminalWidth(fallback int) int {
	if fallback <= 0 {
		fallback = defaultMarkdownWidth
	}
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if parsed, err := strconv.Atoi(cols); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// RenderMarkdown renders markdown using Glamour with terminal-aware wrapping.
func RenderMarkdown(text string) (string, error) {
	return RenderMarkdownWithWidth(text, TerminalWidth(defaultMarkdownWidth))
}

// RenderMarkdownWithWidth renders markdown using Glamour with explicit wrapping.
func RenderMarkdownWithWidth(text string, width int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if width < minMarkdownWidth {
		width = minMarkdownWidth
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	rendered, err := renderer.Render(text)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(rendered, "\n"), nil
}

// ReportMarkdown writes an execution report as a markdown document: a table
// of outcomes in plan order followed by the totals.
func ReportMarkdown(r *sync.ExecutionReport) string {
	var sb strings.Builder
	sb.WriteString("# Apply report\n\n")
	if len(r.Outcomes) == 0 {
		sb.WriteString("Nothing to do.\n")
		return sb.String()
	}

	sb.WriteString("| # | operation | status | detail |\n")
	sb.WriteString("|---|---|---|---|\n")
	for i, o := range r.Outcomes {
		detail := ""
		switch o.Status {
		case sync.StatusFailed:
			detail = fmt.Sprintf("%s: %s", o.Kind, o.Reason)
		case sync.StatusSkipped:
			detail = o.Reason
			if o.Blocker != "" {
				detail += " (r/" + string(o.Blocker) + ")"
			}
		}
		fmt.Fprintf(&sb, "| %d | `%s` | %s | %s |\n", i+1, o.Op.String(), o.Status, escapeCell(detail))
	}

	fmt.Fprintf(&sb, "\n**%d applied, %d failed, %d skipped** in %s\n",
		r.Applied(), r.Failed(), r.Skipped(), FormatDuration(r.Finished.Sub(r.Started)))
	return sb.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

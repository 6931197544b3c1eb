// Package output provides styled terminal output helpers (success, error,
// warning, plan and report formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"

	"github.com/gkontridze/reorg/internal/models"
	"github.com/gkontridze/reorg/internal/sync"
)

// Stdout and Stderr are where the print helpers write. Tests replace them.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	opStyles     = map[sync.OpKind]lipgloss.Style{
		sync.OpDeleteCollection: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		sync.OpSubscribe:        lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		sync.OpCreateCollection: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		sync.OpAddItems:         lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
	statusStyles = map[sync.Status]lipgloss.Style{
		sync.StatusApplied: successStyle,
		sync.StatusFailed:  errorStyle,
		sync.StatusSkipped: warningStyle,
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Fprintln(Stdout, successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message to stderr
func Error(format string, args ...interface{}) {
	fmt.Fprintln(Stderr, errorStyle.Render("ERROR: "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message to stderr
func Warning(format string, args ...interface{}) {
	fmt.Fprintln(Stderr, warningStyle.Render("Warning: "+fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Fprintln(Stdout, fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(Stdout, string(data))
	return nil
}

// Plural returns "1 feed" / "2 feeds".
func Plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// FormatOperation renders one plan step as a human-readable line.
func FormatOperation(op sync.Operation) string {
	style := opStyles[op.Kind]
	switch op.Kind {
	case sync.OpDeleteCollection:
		return style.Render("- delete") + " feed " + titleStyle.Render(string(op.Name))
	case sync.OpSubscribe:
		return style.Render("+ subscribe") + " r/" + string(op.Item)
	case sync.OpCreateCollection:
		line := style.Render("+ create") + " feed " + titleStyle.Render(string(op.Name))
		if len(op.Items) == 0 {
			return line + subtleStyle.Render(" (empty)")
		}
		return fmt.Sprintf("%s with %s: %s", line, Plural(len(op.Items), "sub"), joinItems(op.Items))
	case sync.OpAddItems:
		return fmt.Sprintf("%s %s to feed %s", style.Render("~ add"), joinItems(op.Items), titleStyle.Render(string(op.Name)))
	default:
		return op.String()
	}
}

// FormatPlan renders the plan steps in order followed by a count line and
// any membership drift.
func FormatPlan(p *sync.Plan) string {
	var sb strings.Builder
	if p.Empty() {
		sb.WriteString("No changes. Remote feeds match the document.\n")
	} else {
		sb.WriteString(titleStyle.Render("Plan:"))
		sb.WriteString("\n")
		for i, op := range p.Operations {
			fmt.Fprintf(&sb, "  %2d. %s\n", i+1, FormatOperation(op))
		}
		sb.WriteString("\n")
		sb.WriteString(PlanCounts(p))
		sb.WriteString("\n")
	}

	if p != nil && len(p.Drift) > 0 {
		sb.WriteString("\n")
		sb.WriteString(subtleStyle.Render("Remote subs not in the document (left in place):"))
		sb.WriteString("\n")
		names := make([]models.Name, 0, len(p.Drift))
		for name := range p.Drift {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
		for _, name := range names {
			fmt.Fprintf(&sb, "  %s: %s\n", name, joinItems(p.Drift[name]))
		}
	}
	return sb.String()
}

// PlanCounts summarizes a plan by operation kind, e.g.
// "1 delete, 2 subscribes, 1 create, 0 adds".
func PlanCounts(p *sync.Plan) string {
	return fmt.Sprintf("%s, %s, %s, %s",
		Plural(p.Count(sync.OpDeleteCollection), "delete"),
		Plural(p.Count(sync.OpSubscribe), "subscribe"),
		Plural(p.Count(sync.OpCreateCollection), "create"),
		Plural(p.Count(sync.OpAddItems), "add"),
	)
}

// FormatOutcome renders the result of one executed operation.
func FormatOutcome(o sync.Outcome) string {
	style := statusStyles[o.Status]
	switch o.Status {
	case sync.StatusApplied:
		return style.Render("✓") + " " + FormatOperation(o.Op)
	case sync.StatusFailed:
		return fmt.Sprintf("%s %s %s", style.Render("✗"), FormatOperation(o.Op), errorStyle.Render("failed ("+string(o.Kind)+"): "+o.Reason))
	case sync.StatusSkipped:
		reason := o.Reason
		if o.Blocker != "" {
			reason = fmt.Sprintf("%s: r/%s", reason, o.Blocker)
		}
		return fmt.Sprintf("%s %s %s", style.Render("○"), FormatOperation(o.Op), warningStyle.Render("skipped ("+reason+")"))
	default:
		return FormatOperation(o.Op)
	}
}

// ChangeSummary groups the applied operations of a report by feed.
type ChangeSummary struct {
	Deleted    []models.Name                   `json:"deleted"`
	Created    []models.Name                   `json:"created"`
	Updated    map[models.Name][]models.ItemID `json:"updated"`
	Subscribed []models.ItemID                 `json:"subscribed"`
}

// Summarize builds the change summary from applied outcomes only.
func Summarize(r *sync.ExecutionReport) ChangeSummary {
	s := ChangeSummary{Updated: make(map[models.Name][]models.ItemID)}
	for _, o := range r.Outcomes {
		if o.Status != sync.StatusApplied {
			continue
		}
		switch o.Op.Kind {
		case sync.OpDeleteCollection:
			s.Deleted = append(s.Deleted, o.Op.Name)
		case sync.OpCreateCollection:
			s.Created = append(s.Created, o.Op.Name)
		case sync.OpAddItems:
			s.Updated[o.Op.Name] = append(s.Updated[o.Op.Name], o.Op.Items...)
		case sync.OpSubscribe:
			s.Subscribed = append(s.Subscribed, o.Op.Item)
		}
	}
	return s
}

// FormatReport renders every outcome, the change summary and a totals line.
func FormatReport(r *sync.ExecutionReport) string {
	var sb strings.Builder
	for _, o := range r.Outcomes {
		sb.WriteString(FormatOutcome(o))
		sb.WriteString("\n")
	}
	if len(r.Outcomes) > 0 {
		sb.WriteString("\n")
	}

	s := Summarize(r)
	fmt.Fprintf(&sb, "removed feeds: %s\n", joinNames(s.Deleted))
	fmt.Fprintf(&sb, "added feeds:   %s\n", joinNames(s.Created))
	updated := make([]models.Name, 0, len(s.Updated))
	for name := range s.Updated {
		updated = append(updated, name)
	}
	sort.Slice(updated, func(i, j int) bool { return updated[i] < updated[j] })
	if len(updated) == 0 {
		sb.WriteString("updated feeds: none\n")
	} else {
		sb.WriteString("updated feeds:\n")
		for _, name := range updated {
			fmt.Fprintf(&sb, "  %s: +%s\n", name, joinItems(s.Updated[name]))
		}
	}
	sb.WriteString("\n")
	sb.WriteString(Totals(r))
	sb.WriteString("\n")
	return sb.String()
}

// Totals returns e.g. "3 applied, 1 failed, 1 skipped in 1.2s", styled by
// whether the run fully succeeded.
func Totals(r *sync.ExecutionReport) string {
	line := fmt.Sprintf("%d applied, %d failed, %d skipped in %s",
		r.Applied(), r.Failed(), r.Skipped(), FormatDuration(r.Finished.Sub(r.Started)))
	if r.OK() {
		return successStyle.Render(line)
	}
	return errorStyle.Render(line)
}

// FormatDuration rounds d for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

// Table renders rows under headers with a rounded border. Cells wider than
// maxCell are truncated with an ellipsis; maxCell <= 0 disables truncation.
func Table(headers []string, rows [][]string, maxCell int) string {
	if maxCell > 0 {
		trimmed := make([][]string, len(rows))
		for i, row := range rows {
			trimmed[i] = make([]string, len(row))
			for j, cell := range row {
				trimmed[i][j] = ansi.Truncate(cell, maxCell, "…")
			}
		}
		rows = trimmed
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(subtleStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return titleStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	return t.Render()
}

func joinItems(items []models.ItemID) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = string(it)
	}
	return strings.Join(parts, ", ")
}

func joinNames(names []models.Name) string {
	if len(names) == 0 {
		return "none"
	}
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kalambet/frontdesk/internal/storage"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// roleColor distinguishes the customer from the agent side of a transcript.
// Supervisor lines only show up in audit output.
func roleColor(r storage.Role) string {
	switch r {
	case storage.RoleUser:
		return colorBold
	case storage.RoleSupervisor:
		return colorYellow
	default:
		return colorGreen
	}
}

func statusColor(s storage.Status) string {
	if s == storage.StatusResolved {
		return colorGreen
	}
	return colorYellow
}

func writeConversationLine(w io.Writer, c storage.Conversation) {
	state := "open"
	if c.EndedAt != nil {
		state = "ended"
	}
	title := c.Title
	if title == "" {
		title = colorize(colorDim, "(untitled)")
	}
	fmt.Fprintf(w, "%s  %s  %-5s  %s\n",
		colorize(colorCyan, c.ID),
		c.StartedAt.Local().Format(time.DateTime),
		state,
		truncate(title, 60),
	)
}

func writeMessageLine(w io.Writer, m storage.Message) {
	fmt.Fprintf(w, "%s %s: %s\n",
		m.CreatedAt.Local().Format(time.TimeOnly),
		colorize(roleColor(m.Role), string(m.Role)),
		m.Content,
	)
}

func writeHelpRequestLine(w io.Writer, h storage.HelpRequest) {
	fmt.Fprintf(w, "%s  %s  %-8s  %s\n",
		colorize(colorCyan, h.ID),
		h.CreatedAt.Local().Format(time.DateTime),
		colorize(statusColor(h.Status), string(h.Status)),
		truncate(h.Question, 80),
	)
}

// writeEntry prints one KB entry. A negative score means "not a search hit".
func writeEntry(w io.Writer, e storage.KnowledgeEntry, score float64) {
	head := colorize(colorCyan, e.ID)
	if score >= 0 {
		head += fmt.Sprintf(" [score: %.3f]", score)
	}
	fmt.Fprintf(w, "\n%s\n  Q: %s\n  A: %s\n", head, e.Question, truncate(e.Answer, 500))
}

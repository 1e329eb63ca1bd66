// Package output formats CLI messages and search results.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

const snippetWidth = 160

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	styles styles
}

type styles struct {
	ok, warn, err, dim, title, score lipgloss.Style
}

// New creates a Writer. Color is dropped when noColor is set.
func New(out io.Writer, noColor bool) *Writer {
	plain := lipgloss.NewStyle()
	w := &Writer{out: out, styles: styles{plain, plain, plain, plain, plain, plain}}
	if !noColor {
		w.styles = styles{
			ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("154")),
			warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
			err:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
			dim:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
			title: lipgloss.NewStyle().Bold(true),
			score: lipgloss.NewStyle().Foreground(lipgloss.Color("106")),
		}
	}
	return w
}

// Status prints a message with an icon.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.ok.Render("✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.warn.Render("!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.err.Render("✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Payload prints a search result for humans.
func (w *Writer) Payload(p *search.Payload) {
	header := fmt.Sprintf("%d results", len(p.Items))
	if p.QueryLanguage != "" {
		header += " • language " + p.QueryLanguage
	}
	if p.Engine != "" {
		header += " • " + p.Engine
	}
	_, _ = fmt.Fprintln(w.out, w.styles.dim.Render(header))
	if p.Degraded {
		sources := make([]string, len(p.DegradedSources))
		for i, s := range p.DegradedSources {
			sources[i] = string(s)
		}
		w.Warningf("partial results: %s failed", strings.Join(sources, ", "))
	}

	for i, c := range p.Items {
		w.Newline()
		title := c.Title
		if title == "" {
			title = c.ChunkID
		}
		_, _ = fmt.Fprintf(w.out, "%2d. %s  %s\n", i+1, w.styles.title.Render(title), w.styles.score.Render(scores(c)))
		if c.Path != "" {
			_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.dim.Render(c.Path))
		}
		_, _ = fmt.Fprintf(w.out, "    %s\n", Snippet(c.Content, snippetWidth))
	}
}

// Workspaces prints the configured workspaces as a table.
func (w *Writer) Workspaces(list []*workspace.Workspace) {
	if len(list) == 0 {
		w.Warning("no workspaces configured")
		return
	}
	_, _ = fmt.Fprintln(w.out, w.styles.title.Render(fmt.Sprintf("%-24s %-11s %-7s %-8s %s", "WORKSPACE", "ENGINE", "METRIC", "RERANK", "LANGUAGES")))
	for _, ws := range list {
		rerank := "no"
		if ws.Reranks() {
			rerank = "yes"
		}
		_, _ = fmt.Fprintf(w.out, "%-24s %-11s %-7s %-8s %s\n",
			ws.ID, ws.Engine, ws.Metric, rerank, strings.Join(ws.SupportedLanguages(), ","))
	}
}

func scores(c *search.Candidate) string {
	var parts []string
	if c.Score != nil {
		parts = append(parts, fmt.Sprintf("score=%.4f", *c.Score))
	}
	if c.VectorSearchScore != nil {
		parts = append(parts, fmt.Sprintf("vector=%.4f", *c.VectorSearchScore))
	}
	if c.KeywordSearchScore != nil {
		parts = append(parts, fmt.Sprintf("keyword=%.4f", *c.KeywordSearchScore))
	}
	return strings.Join(parts, " ")
}

// Snippet flattens whitespace and truncates content to width runes.
func Snippet(content string, width int) string {
	flat := strings.Join(strings.Fields(content), " ")
	runes := []rune(flat)
	if len(runes) <= width {
		return flat
	}
	return string(runes[:width-1]) + "…"
}

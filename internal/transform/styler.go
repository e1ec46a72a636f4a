package transform

import (
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
)

// styler decides how rendered markdown elements look.
type styler interface {
	inline(s string, bold, italic, strike bool) string
	heading(level int, s string) string
	code(s string) string
	faint(s string) string
	codeBlock(code, language string) string
	rule(width int) string
	quotePrefix() string
	checkbox(checked bool) string
}

type plainStyler struct{}

func (plainStyler) inline(s string, _, _, _ bool) string { return s }

func (plainStyler) heading(level int, s string) string {
	if level > 2 {
		return s
	}
	underline := "="
	if level == 2 {
		underline = "-"
	}
	width := 0
	for _, line := range strings.Split(s, "\n") {
		width = max(width, ansi.StringWidth(line))
	}
	return s + "\n" + strings.Repeat(underline, width)
}

func (plainStyler) code(s string) string            { return s }
func (plainStyler) faint(s string) string           { return s }
func (plainStyler) codeBlock(code, _ string) string { return code }
func (plainStyler) rule(width int) string           { return strings.Repeat("-", width) }
func (plainStyler) quotePrefix() string             { return "> " }
func (plainStyler) checkbox(checked bool) string {
	if checked {
		return "[x] "
	}
	return "[ ] "
}

// ansiStyler always emits ANSI256 sequences. Output lands in files read
// from the mount, so there is no terminal to detect a profile from.
type ansiStyler struct {
	r        *lipgloss.Renderer
	heading1 lipgloss.Style
	headingN lipgloss.Style
	dim      lipgloss.Style
	border   lipgloss.Style
	done     lipgloss.Style
}

func newANSIStyler() *ansiStyler {
	r := lipgloss.NewRenderer(io.Discard, termenv.WithProfile(termenv.ANSI256))
	r.SetColorProfile(termenv.ANSI256)
	return &ansiStyler{
		r:        r,
		heading1: r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		headingN: r.NewStyle().Bold(true),
		dim:      r.NewStyle().Foreground(lipgloss.Color("245")),
		border:   r.NewStyle().Foreground(lipgloss.Color("240")),
		done:     r.NewStyle().Foreground(lipgloss.Color("42")),
	}
}

func (a *ansiStyler) inline(s string, bold, italic, strike bool) string {
	if !bold && !italic && !strike {
		return s
	}
	return a.r.NewStyle().Bold(bold).Italic(italic).Strikethrough(strike).Render(s)
}

func (a *ansiStyler) heading(level int, s string) string {
	if level <= 2 {
		return a.heading1.Render(s)
	}
	return a.headingN.Render(s)
}

func (a *ansiStyler) code(s string) string  { return a.dim.Render(s) }
func (a *ansiStyler) faint(s string) string { return a.dim.Render(s) }

func (a *ansiStyler) codeBlock(code, language string) string {
	if language != "" {
		var b strings.Builder
		if err := quick.Highlight(&b, code, language, "terminal256", "monokai"); err == nil {
			return b.String()
		}
	}
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		lines[i] = a.dim.Render(line)
	}
	return strings.Join(lines, "\n")
}

func (a *ansiStyler) rule(width int) string { return a.border.Render(strings.Repeat("─", width)) }
func (a *ansiStyler) quotePrefix() string   { return "│ " }

func (a *ansiStyler) checkbox(checked bool) string {
	if checked {
		return a.done.Render("[x]") + " "
	}
	return "[ ] "
}

package transform

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Names of the markdown transforms.
const (
	MarkdownTextName = "markdown-text"
	MarkdownHTMLName = "markdown-html"
	MarkdownANSIName = "markdown-ansi"
)

// DefaultRenderWidth is the wrap column used when none is configured.
const DefaultRenderWidth = 80

const wrapBreakpoints = " ,.;-+|"

func newMarkdown() goldmark.Markdown {
	return goldmark.New(goldmark.WithExtensions(extension.GFM))
}

// MarkdownText renders markdown to wrapped plain text.
func MarkdownText(width int) Transformer {
	md := newMarkdown()
	return NewFunc(MarkdownTextName, func(raw []byte) ([]byte, error) {
		return renderMarkdown(md, raw, plainStyler{}, width), nil
	})
}

// MarkdownHTML renders markdown to an HTML fragment.
func MarkdownHTML() Transformer {
	md := newMarkdown()
	return NewFunc(MarkdownHTMLName, func(raw []byte) ([]byte, error) {
		var buf bytes.Buffer
		if err := md.Convert(raw, &buf); err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
		return buf.Bytes(), nil
	})
}

// MarkdownANSI renders markdown to text styled with ANSI escape sequences.
func MarkdownANSI(width int) Transformer {
	md := newMarkdown()
	st := newANSIStyler()
	return NewFunc(MarkdownANSIName, func(raw []byte) ([]byte, error) {
		return renderMarkdown(md, raw, st, width), nil
	})
}

func renderMarkdown(md goldmark.Markdown, raw []byte, st styler, width int) []byte {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte{}
	}
	doc := md.Parser().Parse(text.NewReader(raw))
	r := &mdRenderer{src: raw, st: st, width: width}
	_ = ast.Walk(doc, r.walk)
	out := strings.TrimRight(r.out.String(), "\n")
	return []byte(out + "\n")
}

// mdRenderer walks the AST and accumulates inline content per block,
// wrapping it when the block closes.
type mdRenderer struct {
	src   []byte
	st    styler
	width int

	out    strings.Builder
	inline strings.Builder

	prefixes    []string
	prefix      string
	prefixWidth int
	bullet      string

	lists []listState

	bold, italic, strike int
	trailing             int
}

type listState struct {
	ordered bool
	next    int
	tight   bool
}

func (r *mdRenderer) pushPrefix(p string) {
	r.prefixes = append(r.prefixes, p)
	r.prefix += p
	r.prefixWidth += ansi.StringWidth(p)
}

func (r *mdRenderer) popPrefix() {
	if len(r.prefixes) == 0 {
		return
	}
	top := r.prefixes[len(r.prefixes)-1]
	r.prefixes = r.prefixes[:len(r.prefixes)-1]
	r.prefix = r.prefix[:len(r.prefix)-len(top)]
	r.prefixWidth -= ansi.StringWidth(top)
}

func (r *mdRenderer) tight() bool {
	return len(r.lists) > 0 && r.lists[len(r.lists)-1].tight
}

func (r *mdRenderer) write(s string) {
	if s == "" {
		return
	}
	r.out.WriteString(s)
	n := len(s) - len(strings.TrimRight(s, "\n"))
	if n == len(s) {
		r.trailing += n
	} else {
		r.trailing = n
	}
}

func (r *mdRenderer) newline() {
	if r.trailing < 1 && r.out.Len() > 0 {
		r.write("\n")
	}
}

func (r *mdRenderer) blankLine() {
	if r.out.Len() == 0 {
		return
	}
	for r.trailing < 2 {
		r.write("\n")
	}
}

// linePrefix returns the pending bullet once, then the nesting prefix.
func (r *mdRenderer) linePrefix() string {
	if r.bullet != "" {
		b := r.bullet
		r.bullet = ""
		return b
	}
	return r.prefix
}

func (r *mdRenderer) prefixLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if i == 0 {
			lines[i] = r.linePrefix() + line
		} else {
			lines[i] = r.prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

func (r *mdRenderer) wrap(s string) string {
	if r.width <= 0 {
		return s
	}
	w := r.width - r.prefixWidth
	if w < 10 {
		w = 10
	}
	return ansi.Wrap(s, w, wrapBreakpoints)
}

func (r *mdRenderer) flush() {
	content := r.inline.String()
	r.inline.Reset()
	if content == "" {
		return
	}
	r.write(r.prefixLines(r.wrap(content)))
	r.newline()
	if !r.tight() {
		r.blankLine()
	}
}

func (r *mdRenderer) styled(s string) string {
	return r.st.inline(s, r.bold > 0, r.italic > 0, r.strike > 0)
}

func (r *mdRenderer) segmentsText(lines *text.Segments) string {
	var b strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(r.src))
	}
	return b.String()
}

// innerText renders the children of n as inline content without
// disturbing the current inline buffer.
func (r *mdRenderer) innerText(n ast.Node) string {
	saved := r.inline.String()
	r.inline.Reset()
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		_ = ast.Walk(c, r.walk)
	}
	got := r.inline.String()
	r.inline.Reset()
	r.inline.WriteString(saved)
	return got
}

func (r *mdRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			r.inline.Reset()
		} else {
			r.flush()
		}

	case ast.KindHeading:
		if entering {
			r.inline.Reset()
			return ast.WalkContinue, nil
		}
		content := ansi.Strip(r.inline.String())
		r.inline.Reset()
		if content != "" {
			r.blankLine()
			r.write(r.prefixLines(r.st.heading(n.(*ast.Heading).Level, r.wrap(content))))
			r.newline()
			r.blankLine()
		}

	case ast.KindFencedCodeBlock:
		if entering {
			block := n.(*ast.FencedCodeBlock)
			r.codeBlock(r.segmentsText(block.Lines()), string(block.Language(r.src)))
		}
		return ast.WalkSkipChildren, nil

	case ast.KindCodeBlock:
		if entering {
			r.codeBlock(r.segmentsText(n.Lines()), "")
		}
		return ast.WalkSkipChildren, nil

	case ast.KindHTMLBlock:
		if entering {
			if html := strings.TrimSpace(r.segmentsText(n.Lines())); html != "" {
				r.write(r.prefixLines(r.st.faint(html)))
				r.newline()
				r.blankLine()
			}
		}
		return ast.WalkSkipChildren, nil

	case ast.KindBlockquote:
		if entering {
			r.pushPrefix(r.st.quotePrefix())
		} else {
			r.popPrefix()
			r.blankLine()
		}

	case ast.KindList:
		if entering {
			list := n.(*ast.List)
			r.lists = append(r.lists, listState{ordered: list.IsOrdered(), next: list.Start, tight: list.IsTight})
		} else {
			r.lists = r.lists[:len(r.lists)-1]
			if !r.tight() {
				r.blankLine()
			}
		}

	case ast.KindListItem:
		if entering {
			r.enterItem()
		} else {
			r.popPrefix()
			if r.tight() {
				r.newline()
			} else {
				r.blankLine()
			}
		}

	case ast.KindThematicBreak:
		if entering {
			w := r.width - r.prefixWidth
			if w <= 0 {
				w = DefaultRenderWidth
			}
			r.blankLine()
			r.write(r.prefixLines(r.st.rule(w)))
			r.newline()
			r.blankLine()
		}

	case ast.KindText:
		if entering {
			t := n.(*ast.Text)
			r.inline.WriteString(r.styled(string(t.Segment.Value(r.src))))
			if t.HardLineBreak() {
				r.inline.WriteString("\n")
			} else if t.SoftLineBreak() {
				r.inline.WriteString(" ")
			}
		}

	case ast.KindString:
		if entering {
			r.inline.WriteString(r.styled(string(n.(*ast.String).Value)))
		}

	case ast.KindEmphasis:
		delta := 1
		if !entering {
			delta = -1
		}
		if n.(*ast.Emphasis).Level >= 2 {
			r.bold += delta
		} else {
			r.italic += delta
		}

	case ast.KindCodeSpan:
		if entering {
			var code strings.Builder
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				switch v := c.(type) {
				case *ast.Text:
					code.Write(v.Segment.Value(r.src))
				case *ast.String:
					code.Write(v.Value)
				}
			}
			r.inline.WriteString(r.st.code(code.String()))
		}
		return ast.WalkSkipChildren, nil

	case ast.KindLink:
		if entering {
			link := n.(*ast.Link)
			r.inline.WriteString(r.innerText(n))
			if dest := string(link.Destination); dest != "" {
				r.inline.WriteString(" " + r.st.faint("("+dest+")"))
			}
		}
		return ast.WalkSkipChildren, nil

	case ast.KindAutoLink:
		if entering {
			r.inline.WriteString(r.st.faint(string(n.(*ast.AutoLink).URL(r.src))))
		}
		return ast.WalkSkipChildren, nil

	case ast.KindImage:
		if entering {
			img := n.(*ast.Image)
			alt := ansi.Strip(r.innerText(n))
			r.inline.WriteString(r.st.faint("[image: " + alt + "]"))
			if dest := string(img.Destination); dest != "" {
				r.inline.WriteString(" " + r.st.faint("("+dest+")"))
			}
		}
		return ast.WalkSkipChildren, nil

	case ast.KindRawHTML:
		return ast.WalkSkipChildren, nil

	case extast.KindStrikethrough:
		if entering {
			r.strike++
		} else {
			r.strike--
		}

	case extast.KindTaskCheckBox:
		if entering {
			r.inline.WriteString(r.st.checkbox(n.(*extast.TaskCheckBox).IsChecked))
		}

	case extast.KindTable:
		if entering {
			r.table(n.(*extast.Table))
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (r *mdRenderer) enterItem() {
	if len(r.lists) == 0 {
		return
	}
	top := &r.lists[len(r.lists)-1]
	bullet := "• "
	if top.ordered {
		bullet = fmt.Sprintf("%d. ", top.next)
		top.next++
	}
	r.bullet = r.prefix + bullet
	r.pushPrefix(strings.Repeat(" ", ansi.StringWidth(bullet)))
}

func (r *mdRenderer) codeBlock(code, language string) {
	rendered := r.st.codeBlock(strings.TrimRight(code, "\n"), language)
	r.blankLine()
	for _, line := range strings.Split(strings.TrimRight(rendered, "\n"), "\n") {
		r.write(r.linePrefix() + line)
		r.write("\n")
	}
	r.blankLine()
}

func (r *mdRenderer) table(t *extast.Table) {
	var rows [][]string
	header := -1
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, strings.TrimSpace(r.innerText(cell)))
		}
		if row.Kind() == extast.KindTableHeader {
			header = len(rows)
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return
	}

	cols := 0
	for _, row := range rows {
		cols = max(cols, len(row))
	}
	widths := make([]int, cols)
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], ansi.StringWidth(cell))
		}
	}

	r.blankLine()
	for i, row := range rows {
		parts := make([]string, cols)
		for c := 0; c < cols; c++ {
			var cell string
			if c < len(row) {
				cell = row[c]
			}
			pad := widths[c] - ansi.StringWidth(cell)
			switch alignment(t, c) {
			case extast.AlignRight:
				cell = strings.Repeat(" ", pad) + cell
			case extast.AlignCenter:
				cell = strings.Repeat(" ", pad/2) + cell + strings.Repeat(" ", pad-pad/2)
			default:
				cell += strings.Repeat(" ", pad)
			}
			parts[c] = cell
		}
		r.write(r.linePrefix() + strings.TrimRight(strings.Join(parts, "  "), " ") + "\n")
		if i == header {
			rules := make([]string, cols)
			for c, w := range widths {
				rules[c] = r.st.rule(w)
			}
			r.write(r.prefix + strings.Join(rules, "  ") + "\n")
		}
	}
	r.blankLine()
}

func alignment(t *extast.Table, col int) extast.Alignment {
	if col < len(t.Alignments) {
		return t.Alignments[col]
	}
	return extast.AlignNone
}

package transform

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderText(t *testing.T, src string) string {
	t.Helper()
	out, err := MarkdownText(DefaultRenderWidth).Transform([]byte(src))
	require.NoError(t, err)
	return string(out)
}

func TestMarkdownTextHeadingAndParagraph(t *testing.T) {
	t.Parallel()

	got := renderText(t, "# Title\n\nHello *world*.\n")
	assert.Equal(t, "Title\n=====\n\nHello world.\n", got)
}

func TestMarkdownTextSoftBreaksReflow(t *testing.T) {
	t.Parallel()

	got := renderText(t, "one\ntwo\nthree\n")
	assert.Equal(t, "one two three\n", got)
}

func TestMarkdownTextTightList(t *testing.T) {
	t.Parallel()

	got := renderText(t, "- a\n- b\n")
	assert.Equal(t, "• a\n• b\n", got)
}

func TestMarkdownTextOrderedList(t *testing.T) {
	t.Parallel()

	got := renderText(t, "3. x\n4. y\n")
	assert.Equal(t, "3. x\n4. y\n", got)
}

func TestMarkdownTextLinkAndCode(t *testing.T) {
	t.Parallel()

	got := renderText(t, "See [site](https://example.com) and `x := 1`.\n")
	assert.Equal(t, "See site (https://example.com) and x := 1.\n", got)
}

func TestMarkdownTextFencedCodeIsVerbatim(t *testing.T) {
	t.Parallel()

	got := renderText(t, "```go\nfunc main() {\n\tprintln(1)\n}\n```\n")
	assert.Equal(t, "func main() {\n\tprintln(1)\n}\n", got)
}

func TestMarkdownTextTable(t *testing.T) {
	t.Parallel()

	got := renderText(t, "| a | bb |\n|---|----|\n| 1 | 2 |\n")
	assert.Equal(t, "a  bb\n-  --\n1  2\n", got)
}

func TestMarkdownTextTaskList(t *testing.T) {
	t.Parallel()

	got := renderText(t, "- [x] done\n- [ ] todo\n")
	assert.Contains(t, got, "[x] done")
	assert.Contains(t, got, "[ ] todo")
}

func TestMarkdownTextWraps(t *testing.T) {
	t.Parallel()

	out, err := MarkdownText(20).Transform([]byte(strings.Repeat("word ", 20)))
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		assert.LessOrEqual(t, ansi.StringWidth(line), 20, "line %q", line)
	}
}

func TestMarkdownTextEmptyInput(t *testing.T) {
	t.Parallel()

	out, err := MarkdownText(DefaultRenderWidth).Transform([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMarkdownTextDeterministic(t *testing.T) {
	t.Parallel()

	src := []byte("# A\n\n> quoted *text*\n\n---\n\n1. one\n2. two\n")
	tr := MarkdownText(DefaultRenderWidth)
	first, err := tr.Transform(src)
	require.NoError(t, err)
	second, err := tr.Transform(src)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMarkdownHTML(t *testing.T) {
	t.Parallel()

	out, err := MarkdownHTML().Transform([]byte("# Hi\n\n~~gone~~\n"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "<h1>Hi</h1>")
	assert.Contains(t, string(out), "<del>gone</del>")
}

func TestMarkdownANSI(t *testing.T) {
	t.Parallel()

	out, err := MarkdownANSI(DefaultRenderWidth).Transform([]byte("# Title\n\n**bold** text\n\n```go\nx := 1\n```\n"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "\x1b[")

	plain := ansi.Strip(string(out))
	assert.Contains(t, plain, "Title")
	assert.Contains(t, plain, "bold text")
	assert.Contains(t, plain, "x := 1")
}

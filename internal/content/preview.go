package content

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MaxPreviewRunes caps preview text length.
const MaxPreviewRunes = 280

var markdown = goldmark.New()

// PreviewText flattens a markdown draft into a single line of plain text,
// capped at MaxPreviewRunes. Code blocks are left out.
func PreviewText(md string) string {
	src := []byte(md)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	space := func() {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
	}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		default:
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
				space()
			}
		}
		return ast.WalkContinue, nil
	})

	out := strings.Join(strings.Fields(b.String()), " ")
	if utf8.RuneCountInString(out) <= MaxPreviewRunes {
		return out
	}
	r := []rune(out)
	return strings.TrimSpace(string(r[:MaxPreviewRunes-1])) + "…"
}

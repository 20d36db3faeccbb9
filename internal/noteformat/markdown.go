package noteformat

import (
	"bytes"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough),
).Parser()

// FromMarkdown builds a structured rich document from markdown source.
// Headings, lists, fenced code, quotes, images and standalone links map to
// their node kinds; emphasis, strong, strikethrough and code spans become run
// styles. Inline links stay as literal markdown in the run text.
func FromMarkdown(src []byte, ids IDGenerator) *Document {
	root := markdownParser.Parse(text.NewReader(src))
	b := &treeBuilder{src: src, ids: ids}

	doc := NewDocument(ids)
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		doc.Content = append(doc.Content, b.blocks(n, 1)...)
	}
	return doc
}

type treeBuilder struct {
	src []byte
	ids IDGenerator
}

func (b *treeBuilder) blocks(n ast.Node, listLevel int) []*Node {
	switch n := n.(type) {
	case *ast.Heading:
		return []*Node{{
			ID:       b.ids.NewID(),
			Kind:     KindHeading,
			Attrs:    Attrs{HeadingLevel: n.Level},
			Children: []*Node{newBlock(b.ids, b.runs(n, nil)...)},
		}}

	case *ast.Paragraph, *ast.TextBlock:
		if single := onlyChild(n); single != nil {
			switch c := single.(type) {
			case *ast.Image:
				return []*Node{{
					ID:       b.ids.NewID(),
					Kind:     KindImage,
					Attrs:    Attrs{ImageURL: string(c.Destination)},
					Children: []*Node{newBlock(b.ids, Run{Text: b.plain(c)})},
				}}
			case *ast.Link:
				return []*Node{{
					ID:       b.ids.NewID(),
					Kind:     KindLink,
					Attrs:    Attrs{Href: string(c.Destination)},
					Children: []*Node{newBlock(b.ids, b.runs(c, nil)...)},
				}}
			}
		}
		return []*Node{newParagraph(b.ids, b.runs(n, nil)...)}

	case *ast.List:
		listType := ListUnordered
		if n.IsOrdered() {
			listType = ListOrdered
		}
		var out []*Node
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			out = append(out, b.listItem(item, listType, listLevel)...)
		}
		return out

	case *ast.FencedCodeBlock:
		return []*Node{b.lineContainer(KindCode, Attrs{Language: string(n.Language(b.src))}, b.rawLines(n))}

	case *ast.CodeBlock:
		return []*Node{b.lineContainer(KindCode, Attrs{}, b.rawLines(n))}

	case *ast.Blockquote:
		var lines []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			lines = append(lines, b.rawLines(c)...)
		}
		return []*Node{b.lineContainer(KindQuote, Attrs{}, lines)}

	case *ast.ThematicBreak:
		return []*Node{newParagraph(b.ids, Run{Text: "---"})}

	default:
		lines := b.rawLines(n)
		if len(lines) == 0 {
			return nil
		}
		return []*Node{newParagraph(b.ids, Run{Text: strings.Join(lines, "\n")})}
	}
}

func (b *treeBuilder) listItem(item ast.Node, listType ListType, level int) []*Node {
	var out []*Node
	var head *Node
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		switch c.(type) {
		case *ast.Paragraph, *ast.TextBlock:
			if head == nil {
				head = &Node{
					ID:       b.ids.NewID(),
					Kind:     KindList,
					Attrs:    Attrs{ListType: listType, ListLevel: level},
					Children: []*Node{newBlock(b.ids, b.runs(c, nil)...)},
				}
				out = append(out, head)
				continue
			}
			out = append(out, b.blocks(c, level)...)
		case *ast.List:
			out = append(out, b.blocks(c, level+1)...)
		default:
			out = append(out, b.blocks(c, level)...)
		}
	}
	if head == nil {
		// empty item such as "- "
		out = append([]*Node{{
			ID:       b.ids.NewID(),
			Kind:     KindList,
			Attrs:    Attrs{ListType: listType, ListLevel: level},
			Children: []*Node{newBlock(b.ids)},
		}}, out...)
	}
	return out
}

// lineContainer holds one nested paragraph per line, the shape the note store
// uses for code and quotes.
func (b *treeBuilder) lineContainer(kind NodeKind, attrs Attrs, lines []string) *Node {
	n := &Node{ID: b.ids.NewID(), Kind: kind, Attrs: attrs}
	for _, l := range lines {
		n.Children = append(n.Children, newParagraph(b.ids, Run{Text: l}))
	}
	return n
}

func (b *treeBuilder) rawLines(n ast.Node) []string {
	segs := n.Lines()
	if segs == nil {
		return nil
	}
	lines := make([]string, 0, segs.Len())
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		lines = append(lines, strings.TrimRight(string(seg.Value(b.src)), "\r\n"))
	}
	return lines
}

func (b *treeBuilder) runs(n ast.Node, styles []Style) []Run {
	var out []Run
	add := func(s string, st []Style) {
		if s == "" {
			return
		}
		// merge with the previous run when the styles match
		if last := len(out) - 1; last >= 0 && sameStyles(out[last].Styles, st) {
			out[last].Text += s
			return
		}
		out = append(out, Run{Text: s, Styles: slices.Clone(st)})
	}

	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			add(string(c.Segment.Value(b.src)), styles)
			if c.SoftLineBreak() || c.HardLineBreak() {
				add("\n", styles)
			}
		case *ast.String:
			add(string(c.Value), styles)
		case *ast.Emphasis:
			style := StyleItalic
			if c.Level >= 2 {
				style = StyleBold
			}
			for _, r := range b.runs(c, appendStyle(styles, style)) {
				add(r.Text, r.Styles)
			}
		case *east.Strikethrough:
			for _, r := range b.runs(c, appendStyle(styles, StyleStrikethrough)) {
				add(r.Text, r.Styles)
			}
		case *ast.CodeSpan:
			add(b.plain(c), appendStyle(styles, StyleCode))
		case *ast.Link:
			add("["+b.plain(c)+"]("+string(c.Destination)+")", styles)
		case *ast.Image:
			add("!["+b.plain(c)+"]("+string(c.Destination)+")", styles)
		case *ast.AutoLink:
			add(string(c.URL(b.src)), styles)
		case *ast.RawHTML:
			var buf bytes.Buffer
			for i := 0; i < c.Segments.Len(); i++ {
				seg := c.Segments.At(i)
				buf.Write(seg.Value(b.src))
			}
			add(buf.String(), styles)
		default:
			for _, r := range b.runs(c, styles) {
				add(r.Text, r.Styles)
			}
		}
	}
	return out
}

// plain returns the unstyled text below n.
func (b *treeBuilder) plain(n ast.Node) string {
	var sb strings.Builder
	for _, r := range b.runs(n, nil) {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

func onlyChild(n ast.Node) ast.Node {
	if n.ChildCount() != 1 {
		return nil
	}
	return n.FirstChild()
}

func appendStyle(styles []Style, styleType string) []Style {
	out := make([]Style, 0, len(styles)+1)
	out = append(out, styles...)
	return append(out, Style{Type: styleType})
}

func sameStyles(a, b []Style) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type {
			return false
		}
	}
	return true
}

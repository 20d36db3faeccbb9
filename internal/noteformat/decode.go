package noteformat

import (
	"fmt"
	"strings"
)

// Decode turns remote content into the flat text stored locally.
//
// Rich documents are rendered to markdown. The rendering is lossy: nodes of
// unknown kind fall back to their text, and attributes without a markdown
// equivalent are dropped.
func Decode(domain Domain, content []byte) (string, error) {
	switch domain {
	case PlainText:
		return string(content), nil
	case RichDocument:
		doc, err := ParseDocument(content)
		if err != nil {
			return "", err
		}
		return RenderMarkdown(doc), nil
	default:
		return "", fmt.Errorf("%w: unknown domain %d", ErrMalformed, int(domain))
	}
}

// RenderMarkdown renders a document tree as markdown.
func RenderMarkdown(doc *Document) string {
	var b strings.Builder
	var prev *Node
	for _, n := range doc.Content {
		text := renderNode(n)
		if text == "" {
			continue
		}
		if prev != nil {
			// consecutive list items stay a single tight list
			if prev.Kind == KindList && n.Kind == KindList {
				b.WriteString("\n")
			} else {
				b.WriteString("\n\n")
			}
		}
		b.WriteString(text)
		prev = n
	}
	return b.String()
}

func renderNode(n *Node) string {
	switch n.Kind {
	case KindHeading:
		level := min(max(n.Attrs.HeadingLevel, 1), 6)
		return strings.Repeat("#", level) + " " + strings.Join(textLines(n, true), " ")

	case KindList:
		indent := strings.Repeat("  ", max(n.Attrs.ListLevel-1, 0))
		marker := "- "
		if n.Attrs.ListType == ListOrdered {
			marker = "1. "
		}
		return indent + marker + strings.Join(textLines(n, true), " ")

	case KindCode:
		body := strings.Join(textLines(n, false), "\n")
		return "```" + n.Attrs.Language + "\n" + body + "\n```"

	case KindQuote:
		lines := textLines(n, true)
		for i, l := range lines {
			lines[i] = strings.TrimRight("> "+l, " ")
		}
		return strings.Join(lines, "\n")

	case KindImage:
		alt := strings.Join(textLines(n, false), " ")
		return "![" + alt + "](" + n.Attrs.ImageURL + ")"

	case KindLink:
		label := strings.Join(textLines(n, true), " ")
		if label == "" {
			label = n.Attrs.Href
		}
		return "[" + label + "](" + n.Attrs.Href + ")"

	default:
		return strings.Join(textLines(n, true), "\n")
	}
}

// textLines flattens a node into lines of text. The runs of block children
// continue the current line; nested containers start lines of their own.
func textLines(n *Node, styled bool) []string {
	var (
		lines []string
		cur   strings.Builder
		open  bool
	)
	flush := func() {
		if open {
			lines = append(lines, cur.String())
			cur.Reset()
			open = false
		}
	}

	if len(n.Runs) > 0 {
		writeRuns(&cur, n.Runs, styled)
		open = true
	}
	for _, c := range n.Children {
		if c.Block {
			writeRuns(&cur, c.Runs, styled)
			open = true
			if len(c.Children) > 0 {
				flush()
				lines = append(lines, textLines(&Node{Children: c.Children}, styled)...)
			}
			continue
		}
		flush()
		lines = append(lines, textLines(c, styled)...)
	}
	flush()
	return lines
}

func writeRuns(b *strings.Builder, runs []Run, styled bool) {
	for _, r := range runs {
		if !styled || r.Text == "" {
			b.WriteString(r.Text)
			continue
		}
		b.WriteString(styleRun(r))
	}
}

// styleRun wraps the run text in markdown markers, innermost first.
func styleRun(r Run) string {
	text := r.Text
	if r.HasStyle(StyleCode) {
		text = "`" + text + "`"
	}
	if r.HasStyle(StyleStrikethrough) {
		text = "~~" + text + "~~"
	}
	if r.HasStyle(StyleItalic) {
		text = "*" + text + "*"
	}
	if r.HasStyle(StyleBold) {
		text = "**" + text + "**"
	}
	return text
}

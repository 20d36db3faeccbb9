package noteformat

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// NodeKind is the structural kind of a top level node.
type NodeKind string

const (
	KindParagraph NodeKind = ""
	KindHeading   NodeKind = "h"
	KindList      NodeKind = "l"
	KindCode      NodeKind = "cd"
	KindQuote     NodeKind = "q"
	KindImage     NodeKind = "im"
	KindLink      NodeKind = "li"
)

// ListType distinguishes bullet lists from numbered ones.
type ListType string

const (
	ListUnordered ListType = "unordered"
	ListOrdered   ListType = "ordered"
)

// Run styles
const (
	StyleBold          = "b"
	StyleItalic        = "i"
	StyleStrikethrough = "s"
	StyleCode          = "c"
	StyleUnderline     = "u"
)

// Document is the root of a rich note.
type Document struct {
	ID       string
	Attrs    DocAttrs
	Title    string
	Compress bool
	Content  []*Node
}

// DocAttrs are the attributes of the document node itself.
type DocAttrs struct {
	Version             int
	IncompatibleVersion int
	FormatVersion       string
	Extra               map[string]any
}

// Node is a paragraph level container or, when Block is set, a leaf block
// holding text runs.
type Node struct {
	Block    bool
	ID       string
	Kind     NodeKind
	Attrs    Attrs
	Children []*Node
	Runs     []Run
}

// Attrs are the known node attributes. Keys the converter does not know are
// kept in Extra so they survive a parse and marshal cycle.
type Attrs struct {
	HeadingLevel int
	ListType     ListType
	ListLevel    int
	Language     string
	ImageURL     string
	Href         string
	Extra        map[string]any
}

// Run is a span of text sharing the same styles.
type Run struct {
	Text   string
	Styles []Style
}

// Style is an inline style applied to a run.
type Style struct {
	Type  string
	Value any
}

// HasStyle reports whether the run carries the given style type.
func (r Run) HasStyle(styleType string) bool {
	for _, s := range r.Styles {
		if s.Type == styleType {
			return true
		}
	}
	return false
}

// wire structs: the only place the numeric tags are spelled out.
//
//	"2" node type ("1" document, "2" block)
//	"3" id
//	"4" attributes
//	"5" children
//	"6" kind
//	"7" runs
//	"8" run text
//	"9" run styles
type wireDocument struct {
	Type     string         `json:"2"`
	ID       string         `json:"3"`
	Attrs    map[string]any `json:"4"`
	Content  []*wireNode    `json:"5"`
	Title    string         `json:"title"`
	Compress bool           `json:"__compress__"`
}

type wireNode struct {
	Type     string         `json:"2,omitempty"`
	ID       string         `json:"3,omitempty"`
	Attrs    map[string]any `json:"4,omitempty"`
	Children []*wireNode    `json:"5,omitempty"`
	Kind     string         `json:"6,omitempty"`
	Runs     []*wireRun     `json:"7,omitempty"`
}

type wireRun struct {
	Text   string       `json:"8"`
	Styles []*wireStyle `json:"9,omitempty"`
}

type wireStyle struct {
	Type  string `json:"2"`
	Value any    `json:"0,omitempty"`
}

const (
	nodeTypeDocument = "1"
	nodeTypeBlock    = "2"
)

// attribute keys
const (
	attrHeadingLevel        = "l"
	attrListType            = "lt"
	attrListLevel           = "ll"
	attrLanguage            = "la"
	attrImageURL            = "u"
	attrHref                = "hf"
	attrVersion             = "version"
	attrIncompatibleVersion = "incompatibleVersion"
	attrFormatVersion       = "fv"
)

// ParseDocument decodes the tag keyed JSON of a rich note.
func ParseDocument(data []byte) (*Document, error) {
	var wd wireDocument
	if err := json.Unmarshal(data, &wd); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if wd.Type != nodeTypeDocument && wd.Content == nil {
		return nil, fmt.Errorf("%w: not a document tree", ErrMalformed)
	}

	doc := &Document{
		ID:       wd.ID,
		Attrs:    docAttrsFromWire(wd.Attrs),
		Title:    wd.Title,
		Compress: wd.Compress,
		Content:  make([]*Node, 0, len(wd.Content)),
	}
	for _, wn := range wd.Content {
		if wn == nil {
			continue
		}
		doc.Content = append(doc.Content, nodeFromWire(wn))
	}
	return doc, nil
}

// MarshalDocument encodes a document to the tag keyed JSON of a rich note.
func MarshalDocument(doc *Document) ([]byte, error) {
	wd := wireDocument{
		Type:     nodeTypeDocument,
		ID:       doc.ID,
		Attrs:    docAttrsToWire(doc.Attrs),
		Content:  make([]*wireNode, 0, len(doc.Content)),
		Title:    doc.Title,
		Compress: doc.Compress,
	}
	for _, n := range doc.Content {
		wd.Content = append(wd.Content, nodeToWire(n))
	}
	return json.Marshal(&wd)
}

func nodeFromWire(wn *wireNode) *Node {
	n := &Node{
		Block: wn.Type == nodeTypeBlock,
		ID:    wn.ID,
		Kind:  NodeKind(wn.Kind),
		Attrs: attrsFromWire(wn.Attrs),
	}
	for _, c := range wn.Children {
		if c != nil {
			n.Children = append(n.Children, nodeFromWire(c))
		}
	}
	for _, wr := range wn.Runs {
		if wr == nil {
			continue
		}
		run := Run{Text: wr.Text}
		for _, ws := range wr.Styles {
			if ws != nil {
				run.Styles = append(run.Styles, Style{Type: ws.Type, Value: ws.Value})
			}
		}
		n.Runs = append(n.Runs, run)
	}
	return n
}

func nodeToWire(n *Node) *wireNode {
	wn := &wireNode{
		ID:    n.ID,
		Kind:  string(n.Kind),
		Attrs: attrsToWire(n.Attrs),
	}
	if n.Block {
		wn.Type = nodeTypeBlock
	}
	for _, c := range n.Children {
		wn.Children = append(wn.Children, nodeToWire(c))
	}
	for _, r := range n.Runs {
		wr := &wireRun{Text: r.Text}
		for _, s := range r.Styles {
			wr.Styles = append(wr.Styles, &wireStyle{Type: s.Type, Value: s.Value})
		}
		wn.Runs = append(wn.Runs, wr)
	}
	return wn
}

func attrsFromWire(m map[string]any) Attrs {
	var a Attrs
	for k, v := range m {
		switch k {
		case attrHeadingLevel:
			a.HeadingLevel = headingLevel(v)
		case attrListType:
			a.ListType = ListType(asString(v))
		case attrListLevel:
			a.ListLevel = asInt(v)
		case attrLanguage:
			a.Language = asString(v)
		case attrImageURL:
			a.ImageURL = asString(v)
		case attrHref:
			a.Href = asString(v)
		default:
			if a.Extra == nil {
				a.Extra = make(map[string]any)
			}
			a.Extra[k] = v
		}
	}
	return a
}

func attrsToWire(a Attrs) map[string]any {
	m := make(map[string]any, len(a.Extra)+2)
	for k, v := range a.Extra {
		m[k] = v
	}
	if a.HeadingLevel > 0 {
		m[attrHeadingLevel] = "h" + strconv.Itoa(a.HeadingLevel)
	}
	if a.ListType != "" {
		m[attrListType] = string(a.ListType)
	}
	if a.ListLevel > 0 {
		m[attrListLevel] = a.ListLevel
	}
	if a.Language != "" {
		m[attrLanguage] = a.Language
	}
	if a.ImageURL != "" {
		m[attrImageURL] = a.ImageURL
	}
	if a.Href != "" {
		m[attrHref] = a.Href
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func docAttrsFromWire(m map[string]any) DocAttrs {
	var a DocAttrs
	for k, v := range m {
		switch k {
		case attrVersion:
			a.Version = asInt(v)
		case attrIncompatibleVersion:
			a.IncompatibleVersion = asInt(v)
		case attrFormatVersion:
			a.FormatVersion = asString(v)
		default:
			if a.Extra == nil {
				a.Extra = make(map[string]any)
			}
			a.Extra[k] = v
		}
	}
	return a
}

func docAttrsToWire(a DocAttrs) map[string]any {
	m := make(map[string]any, len(a.Extra)+3)
	for k, v := range a.Extra {
		m[k] = v
	}
	m[attrVersion] = a.Version
	m[attrIncompatibleVersion] = a.IncompatibleVersion
	m[attrFormatVersion] = a.FormatVersion
	return m
}

// headingLevel accepts "h2" as well as a bare number.
func headingLevel(v any) int {
	if s, ok := v.(string); ok {
		s = strings.TrimPrefix(strings.ToLower(s), "h")
		n, _ := strconv.Atoi(s)
		return n
	}
	return asInt(v)
}

func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case uint64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// extraKeys lists the unknown attribute keys in sorted order.
func (a Attrs) extraKeys() []string {
	keys := make([]string, 0, len(a.Extra))
	for k := range a.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package noteformat

import (
	"fmt"
)

// Encode turns local flat text into content for a note of the given domain.
//
// PlainText is the identity. RichDocument produces a single paragraph holding
// the whole text in one run; structure is not reconstructed, see
// FromMarkdown for that.
func Encode(domain Domain, text string, ids IDGenerator) ([]byte, error) {
	switch domain {
	case PlainText:
		return []byte(text), nil
	case RichDocument:
		return MarshalDocument(SingleParagraph(text, ids))
	default:
		return nil, fmt.Errorf("%w: unknown domain %d", ErrMalformed, int(domain))
	}
}

// NewDocument returns an empty document with the attributes the note store
// expects on new notes.
func NewDocument(ids IDGenerator) *Document {
	return &Document{
		ID: ids.NewID(),
		Attrs: DocAttrs{
			Version:             1,
			IncompatibleVersion: 0,
			FormatVersion:       "0",
		},
		Compress: true,
	}
}

// SingleParagraph wraps text into a one paragraph, one block document.
func SingleParagraph(text string, ids IDGenerator) *Document {
	doc := NewDocument(ids)
	doc.Content = []*Node{newParagraph(ids, Run{Text: text})}
	return doc
}

func newParagraph(ids IDGenerator, runs ...Run) *Node {
	return &Node{
		ID:       ids.NewID(),
		Children: []*Node{newBlock(ids, runs...)},
	}
}

func newBlock(ids IDGenerator, runs ...Run) *Node {
	if len(runs) == 0 {
		runs = []Run{{Text: ""}}
	}
	return &Node{
		Block: true,
		ID:    ids.NewID(),
		Runs:  runs,
	}
}

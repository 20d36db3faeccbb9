// Package noteformat converts between the flat text kept on disk and the
// content formats of the note store.
//
// The note store knows two content domains. PlainText notes carry markdown
// verbatim. RichDocument notes carry a JSON tree whose keys are short numeric
// tags; that tree is exposed here as Document and Node, and the tags only
// appear in the wire structs of document.go.
package noteformat

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for content that cannot be decoded at all.
	ErrMalformed = errors.New("noteformat: malformed content")
)

// Domain is the content kind of a remote note.
type Domain int

const (
	RichDocument Domain = 0
	PlainText    Domain = 1
)

func (d Domain) String() string {
	switch d {
	case RichDocument:
		return "rich"
	case PlainText:
		return "plain"
	default:
		return fmt.Sprintf("domain(%d)", int(d))
	}
}

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	return d == RichDocument || d == PlainText
}

// Pushable reports whether local text can be written back to a note of this
// domain without loss.
func (d Domain) Pushable() bool {
	return d == PlainText
}

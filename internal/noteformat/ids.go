package noteformat

import (
	"fmt"
	"sync"
	"time"

	"github.com/notesync/notesync/internal/utils"
)

// IDGenerator hands out node identifiers.
type IDGenerator interface {
	NewID() string
}

// RandomIDs produces ids of the form "<4 letters or digits>-<epoch millis>".
type RandomIDs struct {
	now func() time.Time
}

// NewRandomIDs returns a generator reading the given clock, or the wall clock
// when now is nil.
func NewRandomIDs(now func() time.Time) *RandomIDs {
	if now == nil {
		now = time.Now
	}
	return &RandomIDs{now: now}
}

func (g *RandomIDs) NewID() string {
	token, err := utils.RandAlnum(4)
	if err != nil {
		token = "node"
	}
	return fmt.Sprintf("%s-%d", token, g.now().UnixMilli())
}

// SequenceIDs produces reproducible ids for tests and golden files.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	millis int64
	n      int
}

func NewSequenceIDs(prefix string, millis int64) *SequenceIDs {
	return &SequenceIDs{prefix: prefix, millis: millis}
}

func (g *SequenceIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s%03d-%d", g.prefix, g.n, g.millis)
}

package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type Side int

const (
	SideNone Side = iota
	SideLocal
	SideRemote
)

func (s Side) String() string {
	switch s {
	case SideLocal:
		return "local"
	case SideRemote:
		return "remote"
	default:
		return "none"
	}
}

func (s Side) Other() Side {
	switch s {
	case SideLocal:
		return SideRemote
	case SideRemote:
		return SideLocal
	default:
		return SideNone
	}
}

// TiePolicy picks the winner when both sides were modified in the same second.
type TiePolicy string

const (
	TieRemote TiePolicy = "remote"
	TieLocal  TiePolicy = "local"
	TieFail   TiePolicy = "fail"
)

func ParseTiePolicy(raw string) (TiePolicy, error) {
	switch p := TiePolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case TieRemote, TieLocal, TieFail:
		return p, nil
	case "":
		return TieRemote, nil
	default:
		return "", fmt.Errorf("invalid tie policy %q", raw)
	}
}

type Resolution struct {
	Winner Side
	Tie    bool
}

// Overwritten is the side whose content is replaced.
func (r Resolution) Overwritten() Side {
	return r.Winner.Other()
}

// Resolve compares modification times at whole-second resolution, since the
// note store reports seconds. The strictly newer side wins.
func Resolve(localMod, remoteMod time.Time, policy TiePolicy) (Resolution, error) {
	l := localMod.Unix()
	r := remoteMod.Unix()

	switch {
	case l > r:
		return Resolution{Winner: SideLocal}, nil
	case r > l:
		return Resolution{Winner: SideRemote}, nil
	}

	switch policy {
	case TieLocal:
		return Resolution{Winner: SideLocal, Tie: true}, nil
	case TieFail:
		return Resolution{Tie: true}, fmt.Errorf("%w (%s)", ErrConflictTie, localMod.UTC().Format(time.RFC3339))
	default:
		return Resolution{Winner: SideRemote, Tie: true}, nil
	}
}

// DiffSummary counts the lines added and removed going from before to after,
// formatted as "+N -M lines".
func DiffSummary(before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	added, removed := 0, 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += countLines(d.Text)
		}
	}
	return fmt.Sprintf("+%d -%d lines", added, removed)
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

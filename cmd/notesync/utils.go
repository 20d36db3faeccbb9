package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/notesync/notesync/internal/client/sync"
	"github.com/notesync/notesync/internal/ynote"
)

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	// https://github.com/fidian/ansi
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

// exitCode maps a command error to the process exit code. A rejected session
// counts as an aborted run.
func exitCode(err error) int {
	var ee *exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, ynote.ErrAuth), errors.Is(err, sync.ErrMetadataWrite):
		return 2
	default:
		return 1
	}
}

// reportError turns the outcome of a run into the command error.
func reportError(report *sync.Report, err error) error {
	if report == nil {
		return err
	}
	if code := report.ExitCode(); code != 0 {
		return &exitError{code: code, err: err}
	}
	return err
}

func outcomeStyle(o sync.Outcome) lipgloss.Style {
	switch o {
	case sync.OutcomeFailed:
		return red
	case sync.OutcomePulledCreate, sync.OutcomePulledUpdate:
		return cyan
	case sync.OutcomePushedCreate, sync.OutcomePushedUpdate:
		return green
	case sync.OutcomeDeletedLocal, sync.OutcomeDeletedRemote:
		return yellow
	case sync.OutcomePlanned:
		return lightGray
	default:
		return gray
	}
}

// resultDetail is the one line explanation shown next to a path.
func resultDetail(res *sync.Result) string {
	var parts []string
	if res.Action != "" && res.Outcome == sync.OutcomePlanned {
		parts = append(parts, string(res.Action))
	}
	if res.Reason != "" {
		parts = append(parts, res.Reason)
	}
	if c := res.Conflict; c != nil {
		conflict := fmt.Sprintf("conflict: %s wins", c.Winner)
		if c.Tie {
			conflict += " on tie"
		}
		if c.Diff != "" {
			conflict += " (" + c.Diff + ")"
		}
		if c.Backup != "" {
			conflict += ", backup " + c.Backup
		}
		parts = append(parts, conflict)
	}
	if res.Err != nil {
		parts = append(parts, fmt.Sprintf("%s: %v", res.ErrorKind(), res.Err))
	}
	return strings.Join(parts, "; ")
}

// printReport writes one line per path that was not silently skipped, then a
// summary line.
func printReport(w io.Writer, report *sync.Report, verbose bool) {
	for _, res := range report.Results {
		detail := resultDetail(res)
		if res.Outcome == sync.OutcomeSkipped && detail == "" && !verbose {
			continue
		}
		line := fmt.Sprintf("%-15s %s", outcomeStyle(res.Outcome).Render(string(res.Outcome)), res.Path)
		if res.Bytes > 0 {
			line += " " + gray.Render(humanize.Bytes(uint64(res.Bytes)))
		}
		if detail != "" {
			line += " " + lightGray.Render(detail)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, summaryLine(report))
}

func summaryLine(report *sync.Report) string {
	counts := report.Counts()
	parts := []string{}
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(counts[sync.OutcomePulledCreate]+counts[sync.OutcomePulledUpdate], "pulled")
	add(counts[sync.OutcomePushedCreate]+counts[sync.OutcomePushedUpdate], "pushed")
	add(counts[sync.OutcomeDeletedLocal], "deleted locally")
	add(counts[sync.OutcomeDeletedRemote], "deleted remotely")
	add(counts[sync.OutcomeForgotten], "forgotten")
	add(len(report.Conflicts()), "conflicts")
	add(counts[sync.OutcomePlanned], "planned")
	add(counts[sync.OutcomeFailed], "failed")
	if len(parts) == 0 {
		parts = append(parts, "nothing to do")
	}

	summary := strings.Join(parts, ", ")
	switch {
	case report.Aborted:
		return red.Render("aborted") + " " + summary + ": " + fmt.Sprint(report.AbortErr)
	case report.DryRun:
		return lightGray.Render("dry run") + " " + summary
	case counts[sync.OutcomeFailed] > 0:
		return red.Render("done") + " " + summary + " in " + report.Duration().Round(time.Millisecond).String()
	default:
		return green.Render("done") + " " + summary + " in " + report.Duration().Round(time.Millisecond).String()
	}
}

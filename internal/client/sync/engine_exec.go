package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/notesync/notesync/internal/noteformat"
	"github.com/notesync/notesync/internal/ynote"
)

const (
	reasonAdopted   = "adopted: contents already match"
	reasonConverged = "converged: contents already match"
)

// execute carries out one planned operation. Metadata is recorded only after
// the transfer it describes has completed.
func (e *Engine) execute(ctx context.Context, op *Operation) *Result {
	res := &Result{
		Path:     op.Path,
		State:    op.State,
		Action:   op.Action,
		Reason:   op.Reason,
		Conflict: op.Conflict,
	}

	var err error
	switch op.Action {
	case ActionPullUpdate, ActionPushUpdate:
		if op.State == StateBothDiverged {
			// both sides may hold the same text, e.g. after a push whose
			// metadata checkpoint was lost
			op.Fallback = op.Action
			err = e.adopt(ctx, op, res)
		} else if op.Action == ActionPullUpdate {
			err = e.pull(ctx, op, res, nil)
		} else {
			err = e.pushUpdate(ctx, op, res, nil)
		}
	case ActionPullCreate:
		err = e.pull(ctx, op, res, nil)
	case ActionPushCreate:
		err = e.pushCreate(ctx, op, res)
	case ActionDeleteLocal:
		err = e.deleteLocal(op, res)
	case ActionDeleteRemote:
		err = e.deleteRemote(ctx, op, res)
	case ActionForget:
		e.meta.Delete(op.Path)
		res.Outcome = OutcomeForgotten
		err = e.meta.Checkpoint()
	case ActionAdopt:
		err = e.adopt(ctx, op, res)
	default:
		res.Outcome = OutcomeSkipped
	}

	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		slog.Error("sync", "op", res.Action, "path", op.Path, "kind", res.ErrorKind(), "error", err)
		return res
	}

	if res.Outcome.IsTransfer() {
		slog.Info("sync", "op", res.Action, "path", op.Path, "status", res.Outcome, "size", humanize.Bytes(uint64(res.Bytes)))
	}
	if res.Conflict != nil && res.Outcome != OutcomeSkipped {
		slog.Warn("sync", "op", "Conflict", "path", op.Path,
			"winner", res.Conflict.Winner, "overwritten", res.Conflict.Overwritten,
			"tie", res.Conflict.Tie, "backup", res.Conflict.Backup, "diff", res.Conflict.Diff)
	}
	return res
}

// remoteContent is a downloaded note decoded to local text.
type remoteContent struct {
	text     string
	domain   noteformat.Domain
	version  int64
	modified time.Time
}

func (e *Engine) fetch(ctx context.Context, remote *ynote.RemoteFile) (*remoteContent, error) {
	dl, err := e.remote.Download(ctx, remote.ID, remote.Version)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	domain := dl.Domain
	if !domain.Valid() {
		domain = remote.Domain
	}
	text, err := noteformat.Decode(domain, dl.Content)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	// the listed version is the one whose content was requested
	rc := &remoteContent{
		text:     text,
		domain:   domain,
		version:  remote.Version,
		modified: remote.ModifyTime,
	}
	if remote.Version < 0 {
		rc.version = dl.Version
		rc.modified = dl.ModifyTime
	}
	if rc.modified.IsZero() {
		rc.modified = dl.ModifyTime
	}
	return rc, nil
}

// pull writes the remote note to the local path. A malformed note fails the
// path before anything local is touched.
func (e *Engine) pull(ctx context.Context, op *Operation, res *Result, rc *remoteContent) error {
	if rc == nil {
		var err error
		if rc, err = e.fetch(ctx, op.Remote); err != nil {
			return err
		}
	}
	content := []byte(rc.text)

	if op.Conflict != nil && op.Local != nil {
		old, err := e.tree.Read(op.Path)
		if err != nil {
			return err
		}
		res.Conflict.Diff = DiffSummary(string(old), rc.text)
		if !e.opts.DisableBackups {
			backup, err := WriteConflictBackup(e.tree, op.Path, old, e.opts.Clock(), e.notifyLocalWrite)
			if err != nil {
				return err
			}
			res.Conflict.Backup = backup
		}
	}

	e.notifyLocalWrite(op.Path)
	if err := e.tree.Write(op.Path, content, rc.modified); err != nil {
		return err
	}

	localMod := rc.modified
	if lf, err := e.tree.Stat(op.Path); err == nil && lf != nil {
		localMod = lf.ModTime
	}

	now := e.opts.Clock()
	entry := MetadataEntry{
		FileID:           op.Remote.ID,
		ParentID:         op.Remote.ParentID,
		Domain:           rc.domain,
		LocalFingerprint: Fingerprint(content),
		RemoteVersion:    rc.version,
		LocalModTime:     localMod,
		RemoteModTime:    rc.modified,
		CreateTime:       op.Remote.CreateTime,
		LastSyncTime:     now,
	}
	if err := e.record(op.Path, entry); err != nil {
		return err
	}

	res.Bytes = int64(len(content))
	if op.Action == ActionPullCreate {
		res.Outcome = OutcomePulledCreate
	} else {
		res.Outcome = OutcomePulledUpdate
	}
	return nil
}

// pushCreate creates a new plain text note from the local file.
func (e *Engine) pushCreate(ctx context.Context, op *Operation, res *Result) error {
	content, err := e.tree.Read(op.Path)
	if err != nil {
		return err
	}

	parentID, err := e.ensureRemoteDir(ctx, path.Dir(op.Path))
	if err != nil {
		return err
	}

	body, err := noteformat.Encode(noteformat.PlainText, string(content), e.opts.IDs)
	if err != nil {
		return err
	}

	now := e.opts.Clock()
	modTime := localModTime(op, now)
	fileID := e.remote.NewFileID()
	result, err := e.remote.Push(ctx, &ynote.PushRequest{
		FileID:        fileID,
		ParentID:      parentID,
		Name:          path.Base(op.Path),
		Domain:        noteformat.PlainText,
		RootVersion:   -1,
		CreateTime:    now,
		ModifyTime:    modTime,
		Content:       body,
		TransactionID: fileID,
		Create:        true,
	})
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}

	entry := MetadataEntry{
		FileID:           result.FileID,
		ParentID:         parentID,
		Domain:           noteformat.PlainText,
		LocalFingerprint: Fingerprint(content),
		RemoteVersion:    result.Version,
		LocalModTime:     modTime,
		RemoteModTime:    modTime.Truncate(time.Second),
		CreateTime:       now,
		LastSyncTime:     now,
	}
	if err := e.record(op.Path, entry); err != nil {
		return err
	}

	res.Bytes = int64(len(content))
	res.Outcome = OutcomePushedCreate
	return nil
}

// pushUpdate saves the local file over the existing plain text note.
func (e *Engine) pushUpdate(ctx context.Context, op *Operation, res *Result, rc *remoteContent) error {
	content, err := e.tree.Read(op.Path)
	if err != nil {
		return err
	}

	if op.Conflict != nil {
		if rc == nil {
			if rc, err = e.fetch(ctx, op.Remote); err != nil {
				return err
			}
		}
		res.Conflict.Diff = DiffSummary(rc.text, string(content))
		if !e.opts.DisableBackups {
			backup, err := WriteConflictBackup(e.tree, op.Path, []byte(rc.text), e.opts.Clock(), e.notifyLocalWrite)
			if err != nil {
				return err
			}
			res.Conflict.Backup = backup
		}
	}

	body, err := noteformat.Encode(noteformat.PlainText, string(content), e.opts.IDs)
	if err != nil {
		return err
	}

	now := e.opts.Clock()
	modTime := localModTime(op, now)
	result, err := e.remote.Push(ctx, &ynote.PushRequest{
		FileID:        op.Remote.ID,
		ParentID:      op.Remote.ParentID,
		Name:          op.Remote.Name,
		Domain:        noteformat.PlainText,
		RootVersion:   op.Remote.Version,
		CreateTime:    op.Remote.CreateTime,
		ModifyTime:    modTime,
		Content:       body,
		TransactionID: op.Remote.ID,
	})
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}

	entry := MetadataEntry{
		FileID:           result.FileID,
		ParentID:         op.Remote.ParentID,
		Domain:           noteformat.PlainText,
		LocalFingerprint: Fingerprint(content),
		RemoteVersion:    result.Version,
		LocalModTime:     modTime,
		RemoteModTime:    modTime.Truncate(time.Second),
		CreateTime:       op.Remote.CreateTime,
		LastSyncTime:     now,
	}
	if err := e.record(op.Path, entry); err != nil {
		return err
	}

	res.Bytes = int64(len(content))
	res.Outcome = OutcomePushedUpdate
	return nil
}

func (e *Engine) deleteLocal(op *Operation, res *Result) error {
	e.notifyLocalWrite(op.Path)
	if err := e.tree.Remove(op.Path); err != nil {
		return err
	}
	e.meta.Delete(op.Path)
	res.Outcome = OutcomeDeletedLocal
	return e.meta.Checkpoint()
}

func (e *Engine) deleteRemote(ctx context.Context, op *Operation, res *Result) error {
	if err := e.remote.Delete(ctx, op.Remote.ID); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	e.meta.Delete(op.Path)
	res.Outcome = OutcomeDeletedRemote
	return e.meta.Checkpoint()
}

// adopt handles a path present on both sides with no metadata, or with
// metadata both sides have moved past. Matching contents are recorded without
// a transfer; otherwise the planned conflict winner is applied.
func (e *Engine) adopt(ctx context.Context, op *Operation, res *Result) error {
	rc, err := e.fetch(ctx, op.Remote)
	if err != nil {
		return err
	}
	content, err := e.tree.Read(op.Path)
	if err != nil {
		return err
	}

	if Fingerprint([]byte(rc.text)) == Fingerprint(content) {
		entry := MetadataEntry{
			FileID:           op.Remote.ID,
			ParentID:         op.Remote.ParentID,
			Domain:           rc.domain,
			LocalFingerprint: Fingerprint(content),
			RemoteVersion:    rc.version,
			LocalModTime:     op.Local.ModTime,
			RemoteModTime:    rc.modified,
			CreateTime:       op.Remote.CreateTime,
			LastSyncTime:     e.opts.Clock(),
		}
		if err := e.record(op.Path, entry); err != nil {
			return err
		}
		res.Conflict = nil
		res.Outcome = OutcomeSkipped
		res.Reason = reasonAdopted
		if op.Meta != nil {
			res.Reason = reasonConverged
		}
		return nil
	}

	if op.Err != nil {
		return op.Err
	}

	res.Action = op.Fallback
	switch op.Fallback {
	case ActionPullUpdate:
		return e.pull(ctx, op, res, rc)
	case ActionPushUpdate:
		return e.pushUpdate(ctx, op, res, rc)
	default:
		res.Outcome = OutcomeSkipped
		return nil
	}
}

// record replaces the metadata entry for path and saves when due. A changed
// file id means the note was recreated, so the old entry is dropped first.
func (e *Engine) record(p string, entry MetadataEntry) error {
	if prev, ok := e.meta.Get(p); ok && prev.FileID != entry.FileID {
		e.meta.Delete(p)
	}
	if err := e.meta.Upsert(p, entry); err != nil {
		return err
	}
	return e.meta.Checkpoint()
}

func localModTime(op *Operation, fallback time.Time) time.Time {
	if op.Local != nil && !op.Local.ModTime.IsZero() {
		return op.Local.ModTime
	}
	return fallback
}

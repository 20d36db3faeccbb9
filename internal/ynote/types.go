package ynote

import (
	"time"

	"github.com/notesync/notesync/internal/noteformat"
)

// RemoteFile is a note or folder as the store reports it.
type RemoteFile struct {
	ID         string
	ParentID   string
	Name       string
	Dir        bool
	Domain     noteformat.Domain
	Version    int64
	ModifyTime time.Time
	CreateTime time.Time
	Size       int64
}

// Download is the content of a note at some version.
type Download struct {
	Content     []byte
	ContentType string
	Domain      noteformat.Domain
	Version     int64
	ModifyTime  time.Time
}

// PushRequest writes note content. Create must be set for notes the store
// has not seen yet.
type PushRequest struct {
	FileID        string
	ParentID      string
	Name          string
	Domain        noteformat.Domain
	RootVersion   int64
	CreateTime    time.Time
	ModifyTime    time.Time
	Content       []byte
	TransactionID string
	Create        bool
}

type PushResult struct {
	FileID  string
	Version int64
}

// wire types

type fileEntry struct {
	ID                string `json:"id"`
	ParentID          string `json:"parentId"`
	Name              string `json:"name"`
	Dir               bool   `json:"dir"`
	Domain            *int   `json:"domain"`
	Version           int64  `json:"version"`
	ModifyTimeForSort int64  `json:"modifyTimeForSort"`
	CreateTimeForSort int64  `json:"createTimeForSort"`
	FileSize          int64  `json:"fileSize"`
}

type entryEnvelope struct {
	FileEntry *fileEntry `json:"fileEntry"`
	Entry     *fileEntry `json:"entry"`
}

func (e *entryEnvelope) entry() *fileEntry {
	if e.FileEntry != nil {
		return e.FileEntry
	}
	return e.Entry
}

type listPage struct {
	Count   int              `json:"count"`
	Entries []*entryEnvelope `json:"entries"`
}

type pushResponse struct {
	entryEnvelope
	Version         *int64 `json:"version"`
	DuplicateFileID string `json:"duplicateFileId"`
}

func (e *fileEntry) toRemote(parentID string) *RemoteFile {
	// notes without an explicit domain are markdown
	domain := noteformat.PlainText
	if e.Domain != nil {
		domain = noteformat.Domain(*e.Domain)
	}
	if e.ParentID != "" {
		parentID = e.ParentID
	}
	return &RemoteFile{
		ID:         e.ID,
		ParentID:   parentID,
		Name:       e.Name,
		Dir:        e.Dir,
		Domain:     domain,
		Version:    e.Version,
		ModifyTime: unixOrZero(e.ModifyTimeForSort),
		CreateTime: unixOrZero(e.CreateTimeForSort),
		Size:       e.FileSize,
	}
}

func unixOrZero(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

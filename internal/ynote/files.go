package ynote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notesync/notesync/internal/noteformat"
)

const (
	filePath = apiPrefix + "/file"
	syncPath = apiPrefix + "/sync"

	richEditorVersion = "1714445486000"
	summaryLength     = 50
)

// NewFileID returns an id for a note that does not exist remotely yet.
func NewFileID() string {
	return "WEB" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (c *Client) NewFileID() string {
	return NewFileID()
}

// Root returns the top level folder of the account.
func (c *Client) Root(ctx context.Context) (*RemoteFile, error) {
	const op = "root"
	resp, err := c.request(ctx).
		SetQueryParam("method", "getByPath").
		SetFormData(c.form(map[string]string{
			"path":   "/",
			"entire": "true",
			"purge":  "false",
		})).
		Post(filePath)
	if err := handleAPIError(resp, err, op); err != nil {
		return nil, err
	}

	env, err := decode[entryEnvelope](resp, op)
	if err != nil {
		return nil, err
	}
	entry := env.entry()
	if entry == nil || entry.ID == "" {
		return nil, fmt.Errorf("%s: %w: no root entry", op, ErrFormat)
	}
	root := entry.toRemote("")
	root.Dir = true
	return root, nil
}

// ListDirectory returns the direct children of a folder, following pages
// until the folder is exhausted.
func (c *Client) ListDirectory(ctx context.Context, dirID string) ([]*RemoteFile, error) {
	op := "list " + dirID
	var files []*RemoteFile

	for offset := 0; ; {
		r := c.request(ctx).
			SetPathParam("id", dirID).
			SetQueryParams(map[string]string{
				"method":    "listPageByParentId",
				"all":       "true",
				"f":         "true",
				"len":       strconv.Itoa(c.pageSize),
				"sort":      "1",
				"isReverse": "false",
			})
		if offset > 0 {
			r.SetQueryParam("startIndex", strconv.Itoa(offset))
		}

		resp, err := r.Get(filePath + "/{id}")
		if err := handleAPIError(resp, err, op); err != nil {
			return nil, err
		}
		page, err := decode[listPage](resp, op)
		if err != nil {
			return nil, err
		}

		for _, env := range page.Entries {
			entry := env.entry()
			if entry == nil || entry.ID == "" || strings.HasPrefix(entry.Name, ".") {
				continue
			}
			files = append(files, entry.toRemote(dirID))
		}

		offset += len(page.Entries)
		if len(page.Entries) < c.pageSize || (page.Count > 0 && offset >= page.Count) {
			return files, nil
		}
	}
}

// GetFileInfo returns the current metadata of one file.
func (c *Client) GetFileInfo(ctx context.Context, fileID string) (*RemoteFile, error) {
	op := "info " + fileID
	resp, err := c.request(ctx).
		SetPathParam("id", fileID).
		SetQueryParam("method", "getById").
		SetFormData(c.form(map[string]string{
			"fileId": fileID,
			"entire": "true",
			"purge":  "false",
		})).
		Post(filePath + "/{id}")
	if err := handleAPIError(resp, err, op); err != nil {
		return nil, err
	}

	env, err := decode[entryEnvelope](resp, op)
	if err != nil {
		return nil, err
	}
	entry := env.entry()
	if entry == nil {
		// some responses return the entry unwrapped
		if entry, err = decode[fileEntry](resp, op); err != nil {
			return nil, err
		}
	}
	if entry.ID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return entry.toRemote(""), nil
}

// Download fetches the content of a note together with its domain. A version
// of -1 means latest, and the version and modification time reported are the
// ones current when the download started. For a concrete version the reported
// version is the requested one and ModifyTime is left zero, since a newer edit
// may have landed since the content was listed.
func (c *Client) Download(ctx context.Context, fileID string, version int64) (*Download, error) {
	info, err := c.GetFileInfo(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if info.Dir {
		return nil, fmt.Errorf("download %s: %w: is a folder", fileID, ErrFormat)
	}

	op := "download " + fileID
	resp, err := c.request(ctx).
		SetQueryParams(map[string]string{
			"method":    "download",
			"_system":   "linux",
			"_deviceId": c.deviceID,
		}).
		SetFormData(c.form(map[string]string{
			"fileId":     fileID,
			"version":    strconv.FormatInt(version, 10),
			"convert":    "true",
			"editorType": "1",
		})).
		Post(syncPath)
	if err := handleAPIError(resp, err, op); err != nil {
		return nil, err
	}

	d := &Download{
		Content:     resp.Bytes(),
		ContentType: resp.GetContentType(),
		Domain:      info.Domain,
		Version:     version,
	}
	if version < 0 {
		d.Version = info.Version
		d.ModifyTime = info.ModifyTime
	}
	return d, nil
}

// Push creates or overwrites a note. RootVersion is the version the content
// was based on, -1 for a new note.
func (c *Client) Push(ctx context.Context, p *PushRequest) (*PushResult, error) {
	op := "push " + p.FileID
	if !p.Domain.Valid() {
		return nil, fmt.Errorf("%s: %w: unknown domain %d", op, ErrFormat, p.Domain)
	}
	if p.FileID == "" || p.ParentID == "" {
		return nil, fmt.Errorf("%s: %w: file and parent id are required", op, ErrFormat)
	}

	resp, err := c.request(ctx).
		SetQueryParams(map[string]string{
			"method": "push",
			"sev":    "j1",
			"sec":    "v1",
		}).
		SetFormData(c.form(pushForm(p, time.Now()))).
		Post(syncPath)
	if err := handleAPIError(resp, err, op); err != nil {
		return nil, err
	}

	res, err := decode[pushResponse](resp, op)
	if err != nil {
		return nil, err
	}

	out := &PushResult{FileID: p.FileID, Version: p.RootVersion + 1}
	if entry := res.entry(); entry != nil {
		if entry.ID != "" {
			out.FileID = entry.ID
		}
		if entry.Version > 0 {
			out.Version = entry.Version
		}
	} else if res.Version != nil {
		out.Version = *res.Version
	}
	return out, nil
}

func pushForm(p *PushRequest, now time.Time) map[string]string {
	modify := p.ModifyTime
	if modify.IsZero() {
		modify = now
	}
	txID := p.TransactionID
	if txID == "" {
		txID = p.FileID
	}

	form := map[string]string{
		"fileId":          p.FileID,
		"parentId":        p.ParentID,
		"domain":          strconv.Itoa(int(p.Domain)),
		"rootVersion":     strconv.FormatInt(p.RootVersion, 10),
		"sessionId":       "",
		"modifyTime":      strconv.FormatInt(modify.Unix(), 10),
		"bodyString":      string(p.Content),
		"transactionId":   txID,
		"transactionTime": strconv.FormatInt(now.UnixMilli(), 10),
		"req_from":        "save",
	}

	if p.Create {
		create := p.CreateTime
		if create.IsZero() {
			create = modify
		}
		form["name"] = p.Name
		form["dir"] = "false"
		form["createTime"] = strconv.FormatInt(create.Unix(), 10)
		form["req_from"] = "create"
	}

	switch p.Domain {
	case noteformat.PlainText:
		form["tags"] = ""
		form["resources"] = ";"
	case noteformat.RichDocument:
		form["editorVersion"] = richEditorVersion
		form["orgEditorType"] = "1"
		form["summary"] = summary(p.Content)
		form["tags"] = ""
	}
	return form
}

func summary(content []byte) string {
	r := []rune(string(content))
	if len(r) > summaryLength {
		r = r[:summaryLength]
	}
	return string(r)
}

// CreateDir creates a folder under parentID. An existing folder with the
// same name is returned instead of an error.
func (c *Client) CreateDir(ctx context.Context, parentID, name string) (*RemoteFile, error) {
	op := "mkdir " + name
	id := NewFileID()
	now := time.Now()

	resp, err := c.request(ctx).
		SetQueryParams(map[string]string{"method": "push", "sev": "j1", "sec": "v1"}).
		SetFormData(c.form(map[string]string{
			"fileId":          id,
			"parentId":        parentID,
			"domain":          "0",
			"rootVersion":     "-1",
			"sessionId":       "",
			"dir":             "true",
			"name":            name,
			"createTime":      strconv.FormatInt(now.Unix(), 10),
			"modifyTime":      strconv.FormatInt(now.Unix(), 10),
			"transactionId":   id,
			"transactionTime": strconv.FormatInt(now.UnixMilli(), 10),
		})).
		Post(syncPath)

	dir := &RemoteFile{
		ID:         id,
		ParentID:   parentID,
		Name:       name,
		Dir:        true,
		Domain:     noteformat.RichDocument,
		ModifyTime: time.Unix(now.Unix(), 0),
		CreateTime: time.Unix(now.Unix(), 0),
	}

	if err := handleAPIError(resp, err, op); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == CodeDuplicateDir {
			if dup := duplicateID(resp.Bytes()); dup != "" {
				dir.ID = dup
				return dir, nil
			}
		}
		return nil, err
	}

	res, err := decode[pushResponse](resp, op)
	if err != nil {
		return nil, err
	}
	if entry := res.entry(); entry != nil && entry.ID != "" {
		dir.ID = entry.ID
	}
	return dir, nil
}

func duplicateID(body []byte) string {
	var res pushResponse
	if err := jsonUnmarshal(body, &res); err != nil {
		return ""
	}
	return res.DuplicateFileID
}

// Delete moves a file or folder to the remote trash.
func (c *Client) Delete(ctx context.Context, fileID string) error {
	resp, err := c.request(ctx).
		SetPathParam("id", fileID).
		SetQueryParam("method", "delete").
		SetFormData(c.form(nil)).
		Post(filePath + "/{id}")
	return handleAPIError(resp, err, "delete "+fileID)
}

package ynote

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/notesync/notesync/internal/noteformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListDirectoryPages(t *testing.T) {
	var offsets []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/yws/api/personal/file/dir1", r.URL.Path)
		assert.Equal(t, "listPageByParentId", r.URL.Query().Get("method"))
		assert.Equal(t, "2", r.URL.Query().Get("len"))
		offsets = append(offsets, r.URL.Query().Get("startIndex"))

		if r.URL.Query().Get("startIndex") == "" {
			writeJSON(w, http.StatusOK, `{"count": 5, "entries": [
				{"fileEntry": {"id": "a", "name": "a.md", "domain": 1, "version": 3, "modifyTimeForSort": 1700000000}},
				{"fileEntry": {"id": "b", "name": "sub", "dir": true}}
			]}`)
			return
		}
		if r.URL.Query().Get("startIndex") == "2" {
			writeJSON(w, http.StatusOK, `{"count": 5, "entries": [
				{"fileEntry": {"id": "c", "name": "c.note", "domain": 0, "createTimeForSort": 1600000000}},
				{"fileEntry": {"id": "h", "name": ".hidden"}}
			]}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"count": 5, "entries": [
			{"fileEntry": {"id": "d", "name": "d.md", "domain": 1}}
		]}`)
	})

	files, err := c.ListDirectory(context.Background(), "dir1")
	require.NoError(t, err)
	assert.Equal(t, []string{"", "2", "4"}, offsets)
	require.Len(t, files, 4)

	assert.Equal(t, "a", files[0].ID)
	assert.Equal(t, "dir1", files[0].ParentID)
	assert.Equal(t, noteformat.PlainText, files[0].Domain)
	assert.Equal(t, int64(3), files[0].Version)
	assert.Equal(t, time.Unix(1700000000, 0), files[0].ModifyTime)

	assert.True(t, files[1].Dir)
	assert.True(t, files[1].ModifyTime.IsZero())

	assert.Equal(t, noteformat.RichDocument, files[2].Domain)
	assert.Equal(t, time.Unix(1600000000, 0), files[2].CreateTime)
	assert.Equal(t, "d", files[3].ID)
}

func TestListDirectoryEmpty(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusOK, `{"count": 0, "entries": []}`)
	})

	files, err := c.ListDirectory(context.Background(), "dir1")
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Equal(t, 1, calls)
}

func TestGetFileInfo(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"wrapped", `{"fileEntry": {"id": "f1", "parentId": "p1", "name": "n.md", "domain": 1, "version": 7}}`},
		{"unwrapped", `{"id": "f1", "parentId": "p1", "name": "n.md", "domain": 1, "version": 7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.NoError(t, r.ParseForm())
				assert.Equal(t, "getById", r.URL.Query().Get("method"))
				assert.Equal(t, "f1", r.PostForm.Get("fileId"))
				assert.Equal(t, "cstk-1", r.PostForm.Get("cstk"))
				writeJSON(w, http.StatusOK, tt.body)
			})

			info, err := c.GetFileInfo(context.Background(), "f1")
			require.NoError(t, err)
			assert.Equal(t, "f1", info.ID)
			assert.Equal(t, "p1", info.ParentID)
			assert.Equal(t, int64(7), info.Version)
		})
	}
}

func TestGetFileInfoEmptyIsNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})

	_, err := c.GetFileInfo(context.Background(), "f1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDownload(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		switch r.URL.Query().Get("method") {
		case "getById":
			writeJSON(w, http.StatusOK, `{"fileEntry": {"id": "f1", "domain": 1, "version": 4, "modifyTimeForSort": 1700000100}}`)
		case "download":
			assert.Equal(t, "-1", r.PostForm.Get("version"))
			assert.Equal(t, "device-1", r.URL.Query().Get("_deviceId"))
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("# hello\n"))
		default:
			t.Errorf("unexpected method %q", r.URL.Query().Get("method"))
		}
	})

	d, err := c.Download(context.Background(), "f1", -1)
	require.NoError(t, err)
	assert.Equal(t, "# hello\n", string(d.Content))
	assert.Equal(t, noteformat.PlainText, d.Domain)
	assert.Equal(t, int64(4), d.Version)
	assert.Equal(t, time.Unix(1700000100, 0), d.ModifyTime)
	assert.True(t, strings.HasPrefix(d.ContentType, "text/plain"))
}

func TestDownloadPinnedVersion(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		switch r.URL.Query().Get("method") {
		case "getById":
			// another client saved version 5 after the listing
			writeJSON(w, http.StatusOK, `{"fileEntry": {"id": "f1", "domain": 1, "version": 5, "modifyTimeForSort": 1700000200}}`)
		case "download":
			assert.Equal(t, "4", r.PostForm.Get("version"))
			_, _ = w.Write([]byte("version four\n"))
		}
	})

	d, err := c.Download(context.Background(), "f1", 4)
	require.NoError(t, err)
	assert.Equal(t, "version four\n", string(d.Content))
	assert.Equal(t, int64(4), d.Version)
	assert.True(t, d.ModifyTime.IsZero())
}

func TestDownloadFolderFails(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"fileEntry": {"id": "d1", "dir": true}}`)
	})

	_, err := c.Download(context.Background(), "d1", -1)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestPushCreate(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "/yws/api/personal/sync", r.URL.Path)
		assert.Equal(t, "push", r.URL.Query().Get("method"))

		f := r.PostForm
		assert.Equal(t, "WEBnew", f.Get("fileId"))
		assert.Equal(t, "p1", f.Get("parentId"))
		assert.Equal(t, "1", f.Get("domain"))
		assert.Equal(t, "-1", f.Get("rootVersion"))
		assert.Equal(t, "create", f.Get("req_from"))
		assert.Equal(t, "new.md", f.Get("name"))
		assert.Equal(t, "false", f.Get("dir"))
		assert.Equal(t, "1700000000", f.Get("modifyTime"))
		assert.Equal(t, "1700000000", f.Get("createTime"))
		assert.Equal(t, "body text", f.Get("bodyString"))
		assert.Equal(t, "WEBnew", f.Get("transactionId"))
		assert.Equal(t, ";", f.Get("resources"))
		writeJSON(w, http.StatusOK, `{"entry": {"id": "WEBnew", "version": 1}}`)
	})

	res, err := c.Push(context.Background(), &PushRequest{
		FileID:      "WEBnew",
		ParentID:    "p1",
		Name:        "new.md",
		Domain:      noteformat.PlainText,
		RootVersion: -1,
		ModifyTime:  time.Unix(1700000000, 0),
		Content:     []byte("body text"),
		Create:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, &PushResult{FileID: "WEBnew", Version: 1}, res)
}

func TestPushUpdateVersion(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int64
	}{
		{"entry version", `{"fileEntry": {"id": "f1", "version": 9}}`, 9},
		{"top level version", `{"version": 6}`, 6},
		{"no version", `{}`, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.NoError(t, r.ParseForm())
				assert.Equal(t, "save", r.PostForm.Get("req_from"))
				assert.Empty(t, r.PostForm.Get("name"))
				writeJSON(w, http.StatusOK, tt.body)
			})

			res, err := c.Push(context.Background(), &PushRequest{
				FileID:      "f1",
				ParentID:    "p1",
				Domain:      noteformat.PlainText,
				RootVersion: 4,
				Content:     []byte("x"),
			})
			require.NoError(t, err)
			assert.Equal(t, "f1", res.FileID)
			assert.Equal(t, tt.want, res.Version)
		})
	}
}

func TestPushRejectsBadRequest(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.Push(context.Background(), &PushRequest{FileID: "f1", ParentID: "p1", Domain: noteformat.Domain(7)})
	assert.ErrorIs(t, err, ErrFormat)

	_, err = c.Push(context.Background(), &PushRequest{FileID: "f1", Domain: noteformat.PlainText})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestPushFormRichDocument(t *testing.T) {
	content := []byte(strings.Repeat("é", 60))
	form := pushForm(&PushRequest{
		FileID:   "f1",
		ParentID: "p1",
		Domain:   noteformat.RichDocument,
		Content:  content,
	}, time.Unix(1700000000, 0))

	assert.Equal(t, "0", form["domain"])
	assert.Equal(t, richEditorVersion, form["editorVersion"])
	assert.Equal(t, strings.Repeat("é", 50), form["summary"])
	assert.Equal(t, "1700000000", form["modifyTime"])
	assert.Equal(t, "1700000000000", form["transactionTime"])
	_, hasResources := form["resources"]
	assert.False(t, hasResources)
}

func TestCreateDir(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "true", r.PostForm.Get("dir"))
		assert.Equal(t, "docs", r.PostForm.Get("name"))
		assert.True(t, strings.HasPrefix(r.PostForm.Get("fileId"), "WEB"))
		writeJSON(w, http.StatusOK, `{"entry": {"id": "newdir"}}`)
	})

	dir, err := c.CreateDir(context.Background(), "root", "docs")
	require.NoError(t, err)
	assert.Equal(t, "newdir", dir.ID)
	assert.Equal(t, "root", dir.ParentID)
	assert.True(t, dir.Dir)
}

func TestCreateDirDuplicate(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"error": "20108", "duplicateFileId": "existing"}`)
	})

	dir, err := c.CreateDir(context.Background(), "root", "docs")
	require.NoError(t, err)
	assert.Equal(t, "existing", dir.ID)
}

func TestDelete(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/yws/api/personal/file/f1", r.URL.Path)
		assert.Equal(t, "delete", r.URL.Query().Get("method"))
		writeJSON(w, http.StatusOK, `{}`)
	})

	require.NoError(t, c.Delete(context.Background(), "f1"))
}

func TestNewFileID(t *testing.T) {
	id := NewFileID()
	assert.True(t, strings.HasPrefix(id, "WEB"))
	assert.Len(t, id, 35)
	assert.NotEqual(t, id, NewFileID())
}

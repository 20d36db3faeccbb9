package ynote

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSession(t *testing.T) {
	data := `{"cookies": [
		["YNOTE_LOGIN", "abc", ".note.youdao.com", "/"],
		["short", "x"],
		["YNOTE_CSTK", "token", "note.youdao.com", "/"]
	]}`

	s, err := ParseSession([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "token", s.CSTK)
	require.Len(t, s.Cookies, 2)
	assert.Equal(t, "YNOTE_LOGIN", s.Cookies[0].Name)
	assert.Equal(t, ".note.youdao.com", s.Cookies[0].Domain)
}

func TestParseSessionErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"no cookies", `{"cookies": []}`, ErrNoCookies},
		{"only short entries", `{"cookies": [["a", "b"]]}`, ErrNoCookies},
		{"no cstk", `{"cookies": [["YNOTE_LOGIN", "abc", "d", "/"]]}`, ErrNoCSTK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSession([]byte(tt.data))
			require.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrAuth)
		})
	}

	_, err := ParseSession([]byte("not json"))
	assert.Error(t, err)
}

func TestLoadSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cookies": [["YNOTE_CSTK", "t", "d", "/"]]}`), 0o600))

	s, err := LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, "t", s.CSTK)

	_, err = LoadSession(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

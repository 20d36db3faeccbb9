package ynote

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSession() *Session {
	return &Session{
		Cookies: []*http.Cookie{
			{Name: "YNOTE_CSTK", Value: "cstk-1", Path: "/"},
			{Name: "YNOTE_LOGIN", Value: "login-1", Path: "/"},
		},
		CSTK: "cstk-1",
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(&Config{
		BaseURL:  srv.URL,
		Session:  testSession(),
		Retries:  -1,
		PageSize: 2,
		DeviceID: "device-1",
	})
	require.NoError(t, err)
	return c, srv
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

package ynote

import (
	"fmt"
	"net/http"
	"os"
)

const cstkCookie = "YNOTE_CSTK"

// Session is the authenticated context every call is made with. It is built
// once from the exported browser cookies and handed to New.
type Session struct {
	Cookies []*http.Cookie
	CSTK    string
}

// LoadSession reads a cookies.json file of the form
//
//	{"cookies": [["name", "value", "domain", "path"], ...]}
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cookies %s: %w", path, err)
	}
	return ParseSession(data)
}

func ParseSession(data []byte) (*Session, error) {
	var file struct {
		Cookies [][]any `json:"cookies"`
	}
	if err := jsonUnmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse cookies: %w", err)
	}
	if len(file.Cookies) == 0 {
		return nil, ErrNoCookies
	}

	s := &Session{}
	for _, entry := range file.Cookies {
		if len(entry) < 4 {
			continue
		}
		c := &http.Cookie{
			Name:   fmt.Sprint(entry[0]),
			Value:  fmt.Sprint(entry[1]),
			Domain: fmt.Sprint(entry[2]),
			Path:   fmt.Sprint(entry[3]),
		}
		if c.Name == cstkCookie {
			s.CSTK = c.Value
		}
		s.Cookies = append(s.Cookies, c)
	}

	if len(s.Cookies) == 0 {
		return nil, ErrNoCookies
	}
	if s.CSTK == "" {
		return nil, ErrNoCSTK
	}
	return s, nil
}

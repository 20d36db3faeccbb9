//go:build !sonic

package ynote

import (
	"github.com/goccy/go-json"
)

var (
	jsonMarshal   = json.Marshal
	jsonUnmarshal = json.Unmarshal
)

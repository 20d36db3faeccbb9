//go:build sonic

package ynote

import (
	"github.com/bytedance/sonic"
)

var (
	jsonMarshal   = sonic.Marshal
	jsonUnmarshal = sonic.Unmarshal
)

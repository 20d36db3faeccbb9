package utils

import (
	"crypto/rand"
	"fmt"
)

const alnumTable = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandAlnum returns a random string of ASCII letters and digits.
func RandAlnum(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid length: %d", length)
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	for i := range buf {
		buf[i] = alnumTable[int(buf[i])%len(alnumTable)]
	}

	return string(buf), nil
}

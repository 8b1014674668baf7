package services

import (
	"errors"
	"unicode/utf8"
)

// Error kinds for the run. Per-document kinds end up in the outcome record;
// ErrScan and ErrToolMissing abort the run before any job starts.
var (
	ErrScan           = errors.New("scan failed")
	ErrToolMissing    = errors.New("ocr tool not found")
	ErrUnreadable     = errors.New("document unreadable")
	ErrInvocation     = errors.New("ocr invocation failed")
	ErrRetryExhausted = errors.New("ocr retry exhausted")
	ErrCommit         = errors.New("commit failed")
	ErrInterrupted    = errors.New("interrupted")
)

const maxErrorMessage = 800

func truncateMessage(s string) string {
	return TruncateUTF8(s, maxErrorMessage)
}

// TruncateUTF8 cuts s to at most n bytes without splitting a multi-byte
// character.
func TruncateUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

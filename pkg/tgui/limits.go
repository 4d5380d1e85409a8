package tgui

import (
	"errors"
	"unicode/utf8"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// It covers the full "prefix:action:payload" string.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Check returns ErrCallbackDataTooLong when data exceeds the limit.
func Check(data string) error {
	if len(data) > MaxCallbackDataLen {
		return ErrCallbackDataTooLong
	}
	return nil
}

// Fit cuts data to MaxCallbackDataLen bytes without splitting a rune.
func Fit(data string) string {
	if len(data) <= MaxCallbackDataLen {
		return data
	}
	s := data[:MaxCallbackDataLen]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

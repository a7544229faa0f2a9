// Package tokens counts prompt tokens for context budgeting.
package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// Count returns the token count of text under the o200k_base encoding. If
// the encoding cannot be loaded (offline first run), it falls back to a
// runes/4 estimate so budgeting still degrades gracefully.
func Count(text string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("o200k_base")
		if err == nil {
			enc = e
		}
	})
	if enc == nil {
		return utf8.RuneCountInString(text)/4 + 1
	}
	return len(enc.Encode(text, nil, nil))
}

package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCorrupted(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"short garbage", strings.Repeat("\x01", 19), false},
		{"clean text", "The quick brown fox jumps over the lazy dog.", false},
		{"clean thai", "ภาษาไทยเป็นภาษาที่สวยงามมากและมีประวัติยาวนาน", false},
		{"tabs and newlines are fine", strings.Repeat("a\tb\r\nc", 10), false},
		{"replacement characters", "Hello" + strings.Repeat("�", 5) + strings.Repeat("x", 40), true},
		{"control characters", strings.Repeat("abc\x02", 10), true},
		{"DEL characters", strings.Repeat("abcdefghi\x7f", 5), true},
		{"invalid utf8", strings.Repeat("abcd\xff", 10), true},
		// exactly 5% is not above the threshold
		{"at threshold", "\x01" + strings.Repeat("a", 19), false},
		{"just above threshold", "\x01\x01" + strings.Repeat("a", 37), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCorrupted(tt.text))
		})
	}
}

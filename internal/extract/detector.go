package extract

import "unicode/utf8"

const (
	minCheckedLength    = 20
	maxControlRatio     = 0.05
	maxReplacementRatio = 0.05
)

// IsCorrupted reports whether natively extracted page text is garbled enough
// to need OCR. Text shorter than 20 characters is never corrupted. Invalid
// UTF-8 bytes count as replacement characters.
func IsCorrupted(text string) bool {
	length := utf8.RuneCountInString(text)
	if length < minCheckedLength {
		return false
	}

	var control, replacement int
	for _, r := range text {
		switch {
		case r == utf8.RuneError:
			replacement++
		case isControl(r):
			control++
		}
	}
	return float64(replacement)/float64(length) > maxReplacementRatio ||
		float64(control)/float64(length) > maxControlRatio
}

// isControl matches C0 controls other than tab, line feed and carriage
// return, plus DEL.
func isControl(r rune) bool {
	switch {
	case r <= 0x08, r == 0x0b, r == 0x0c:
		return true
	case r >= 0x0e && r <= 0x1f, r == 0x7f:
		return true
	}
	return false
}

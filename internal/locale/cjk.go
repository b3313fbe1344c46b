package locale

// ContainsCJK reports whether text carries at least one rune from the CJK Unified
// Ideographs block (U+4E00..U+9FFF). It is a cheap classifier, not a language
// detector: kana- or hangul-only text is reported as non-CJK.
func ContainsCJK(text string) bool {
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
	}
	return false
}

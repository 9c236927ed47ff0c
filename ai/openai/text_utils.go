package openai

import "strings"

// maxInputRunes caps how much of a post is sent to the classifier.
const maxInputRunes = 2000

// cleanText collapses runs of whitespace into single spaces and trims the result.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes returns at most n runes of s.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// stripCodeFence removes a surrounding markdown code fence from a model response.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// isLetter returns true if the rune is an ASCII letter.
func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

package utils

// CountTokens estimates the number of tokens in the given text.
// It approximates 1 token ~= 4 characters, which is close enough for
// context-window checks across providers.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

package protocol

// ExtractTags returns the tokens following each '@' in text, in order of
// appearance. A token is one or more characters from [A-Za-z0-9._-].
// Duplicates are kept.
func ExtractTags(text string) []string {
	var tags []string
	for i := 0; i < len(text); i++ {
		if text[i] != '@' {
			continue
		}
		j := i + 1
		for j < len(text) && isTagByte(text[j]) {
			j++
		}
		if j > i+1 {
			tags = append(tags, text[i+1:j])
			i = j - 1
		}
	}
	return tags
}

func isTagByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '.', b == '_', b == '-':
		return true
	}
	return false
}

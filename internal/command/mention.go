package command

import "strings"

// SnowflakeFromMention extracts the id from a user, role, channel or emoji
// mention, or from a bare id. ok is false when no digits remain.
func SnowflakeFromMention(mention string) (string, bool) {
	if i := strings.LastIndex(mention, ":"); i >= 0 {
		mention = mention[i+1:]
	}

	var b strings.Builder
	for _, r := range mention {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

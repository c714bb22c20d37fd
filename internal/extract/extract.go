// Package extract pulls executable code out of free-form oracle responses.
package extract

import (
	"regexp"
	"strings"
)

// Matches the first fenced code block, with or without a language tag.
// Only the first block is taken; later blocks are commentary or
// alternatives the response author did not commit to.
var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\n(.*?)```")

// FirstCodeBlock returns the contents of the first fenced code block in
// text. The second return is false when no block exists; callers must
// treat that as "no code produced", never fall back to the whole text.
func FirstCodeBlock(text string) (string, bool) {
	m := fencedBlock.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	code := strings.TrimSpace(m[1])
	if code == "" {
		return "", false
	}
	return code, true
}

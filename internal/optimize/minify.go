package optimize

import (
	"regexp"
	"strings"
)

// preservedCommentMarkers are substrings that exempt a comment from stripping.
var preservedCommentMarkers = []string{"@jsdoc", "!license", "http://", "https://"}

var blockCommentRegex = regexp.MustCompile(`/\*[\s\S]*?\*/`)
var lineCommentRegex = regexp.MustCompile(`//[^\n]*`)
var blankLinesRegex = regexp.MustCompile(`\n{3,}`)
var trailingWhitespaceRegex = regexp.MustCompile(`[ \t]+\n`)

// minify strips comments (unless preserved) and normalizes whitespace.
// aggressive enables the additional rules reserved for compression level >= 8.
func minify(data []byte, aggressive bool) []byte {
	s := string(data)

	s = blockCommentRegex.ReplaceAllStringFunc(s, func(comment string) string {
		if isPreservedComment(comment) {
			return comment
		}
		return ""
	})
	s = lineCommentRegex.ReplaceAllStringFunc(s, func(comment string) string {
		if isPreservedComment(comment) {
			return comment
		}
		return ""
	})

	s = trailingWhitespaceRegex.ReplaceAllString(s, "\n")
	s = blankLinesRegex.ReplaceAllString(s, "\n\n")

	if aggressive {
		lines := strings.Split(s, "\n")
		out := make([]string, 0, len(lines))
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			out = append(out, trimmed)
		}
		s = strings.Join(out, "\n")
	}

	return []byte(s)
}

func isPreservedComment(comment string) bool {
	for _, marker := range preservedCommentMarkers {
		if strings.Contains(comment, marker) {
			return true
		}
	}
	return false
}

package attendance

import (
	"regexp"
	"strings"
)

var courseNamePattern = regexp.MustCompile(`(?i)Course\s*Name\s*[:-]*\s*(.*)`)

// ExtractSessionName recovers the course name from the metadata block.
// Files too short to carry the course line yield an empty name.
func ExtractSessionName(lines []string) string {
	if len(lines) <= SessionLineIndex {
		return ""
	}

	joined := strings.Join(strings.Split(strings.TrimSpace(lines[SessionLineIndex]), ","), " ")
	if match := courseNamePattern.FindStringSubmatch(joined); match != nil {
		return strings.TrimSpace(match[1])
	}

	return joined
}

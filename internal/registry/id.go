package registry

import (
	"regexp"
	"strings"
)

// disallowedChar matches any rune not in [A-Za-z0-9\s_-].
var disallowedChar = regexp.MustCompile(`[^A-Za-z0-9\s_-]`)

// collapseRun matches runs of whitespace, underscore, or hyphen.
var collapseRun = regexp.MustCompile(`[\s_-]+`)

// maxIDLength is the identifier truncation limit in code points.
const maxIDLength = 50

// GenerateID derives a feature identifier from a title: lowercase, strip
// any character outside [A-Za-z0-9_ -], collapse runs of whitespace or
// separator characters to a single hyphen, trim leading/trailing hyphens,
// and truncate to maxIDLength code points. The function is idempotent:
// GenerateID(GenerateID(x)) == GenerateID(x).
func GenerateID(title string) string {
	id := strings.ToLower(title)
	id = disallowedChar.ReplaceAllString(id, "")
	id = collapseRun.ReplaceAllString(id, "-")
	id = strings.Trim(id, "-")

	runes := []rune(id)
	if len(runes) > maxIDLength {
		runes = runes[:maxIDLength]
		id = strings.Trim(string(runes), "-")
	}
	return id
}

// BranchName returns the source-control branch name for a feature id.
func BranchName(id string) string {
	return "feature/" + id
}

package merge

import (
	"fmt"
	"strings"
)

// GenerateConflictPrompt produces a fixed-format document describing a
// merge conflict, for handing to a human or an assistant. It is a pure
// function of its inputs (spec.md §4.F).
func GenerateConflictPrompt(featureID, featureTitle string, conflictFiles []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Merge conflict: %s (%s)\n\n", featureTitle, featureID)
	b.WriteString("The following files conflict with trunk:\n")
	for _, f := range conflictFiles {
		fmt.Fprintf(&b, "  - %s\n", f)
	}
	b.WriteString("\nSuggested resolution:\n")
	b.WriteString("1. Sync the feature branch onto the latest trunk.\n")
	b.WriteString("2. Resolve each conflicting file listed above in the feature workspace.\n")
	b.WriteString("3. Commit the resolution and re-run the merge.\n")
	return b.String()
}

package executor

import "strings"

// parseCompletion scans accumulated child output for the sentinel, the
// "Files changed:" list, and the "What was built:" summary block, per
// spec.md §4.E.
func parseCompletion(output string) (sentinel bool, changedFiles []string, summary string) {
	lines := strings.Split(output, "\n")

	for _, line := range lines {
		if strings.Contains(line, CompletionSentinel) {
			sentinel = true
			break
		}
	}

	changedFiles = extractListBlock(lines, "Files changed:")
	summary = extractParagraphBlock(lines, "What was built:", "How to verify:")

	return sentinel, changedFiles, summary
}

// extractListBlock collects list items (lines starting with "-" or "*")
// following a header line, until a non-list, non-blank line.
func extractListBlock(lines []string, header string) []string {
	idx := findHeader(lines, header)
	if idx < 0 {
		return nil
	}
	var items []string
	for _, line := range lines[idx+1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			break
		}
		if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*") {
			item := strings.TrimSpace(strings.TrimLeft(trimmed, "-*"))
			items = append(items, item)
			continue
		}
		break
	}
	return items
}

// extractParagraphBlock collects lines following header up to the next
// blank line or stopAt header.
func extractParagraphBlock(lines []string, header, stopAt string) string {
	idx := findHeader(lines, header)
	if idx < 0 {
		return ""
	}
	var out []string
	for _, line := range lines[idx+1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, stopAt) {
			break
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, " ")
}

func findHeader(lines []string, header string) int {
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), header) {
			return i
		}
	}
	return -1
}

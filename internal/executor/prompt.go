package executor

import "strings"

// DefaultPromptTemplate substitutes the project name and specification
// text. The real prompt wording is an external-collaborator concern (see
// spec.md §1: "all prompt-template text" is out of scope); this default is
// a minimal placeholder a caller is expected to override.
const DefaultPromptTemplate = "Project: {{PROJECT}}\n\n{{SPEC}}\n\nWhen finished, print \"" + CompletionSentinel + "\" on its own line."

// BuildPrompt substitutes {{PROJECT}} and {{SPEC}} in template.
func BuildPrompt(template, project, spec string) string {
	out := strings.ReplaceAll(template, "{{PROJECT}}", project)
	out = strings.ReplaceAll(out, "{{SPEC}}", spec)
	return out
}

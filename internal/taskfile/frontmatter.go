package taskfile

import (
	"strings"

	"gopkg.in/yaml.v3"

	"vaultd/internal/task"
)

// FrontmatterMap parses a document's frontmatter block as YAML. The raw
// lines stay untouched on the document; this is a read-only view for
// callers that want individual keys. A document without frontmatter, or
// with frontmatter that is not valid YAML, yields an empty map.
func FrontmatterMap(doc *task.Document) map[string]any {
	lines := doc.Frontmatter
	if len(lines) < 2 {
		return map[string]any{}
	}
	// Strip the --- delimiters.
	body := strings.Join(lines[1:len(lines)-1], "\n")

	m := map[string]any{}
	if err := yaml.Unmarshal([]byte(body), &m); err != nil {
		return map[string]any{}
	}
	return m
}

// FrontmatterString returns one frontmatter key as a string, or "" when
// absent or not a scalar.
func FrontmatterString(doc *task.Document, key string) string {
	if v, ok := FrontmatterMap(doc)[key].(string); ok {
		return v
	}
	return ""
}

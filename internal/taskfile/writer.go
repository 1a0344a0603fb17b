package taskfile

import (
	"strings"

	"vaultd/internal/task"
)

// Format serializes a document to canonical markdown. Frontmatter lines are
// emitted verbatim; sections and tasks are rendered through the canonical
// tag codec, so formatting a freshly parsed canonical file reproduces it
// byte for byte.
func Format(doc *task.Document) string {
	var lines []string
	lines = append(lines, doc.Frontmatter...)

	for _, sec := range doc.Sections {
		if sec.Heading != "" {
			if len(lines) > 0 {
				lines = append(lines, "")
			}
			lines = append(lines, strings.Repeat("#", sec.Level)+" "+sec.Heading, "")
		}
		for _, t := range sec.Tasks {
			lines = appendTask(lines, t, t.IndentLevel)
		}
	}

	return strings.Join(lines, "\n") + "\n"
}

// appendTask renders one task line plus its notes and children.
func appendTask(lines []string, t *task.Task, level int) []string {
	indent := strings.Repeat(" ", level*IndentStep)

	line := indent + "- " + t.Status.Checkbox() + " " + t.Title
	if tagStr := t.Tags.EncodeTags(); tagStr != "" {
		line += " " + tagStr
	}
	lines = append(lines, line)

	noteIndent := strings.Repeat(" ", (level+1)*IndentStep)
	for _, note := range t.Notes {
		lines = append(lines, noteIndent+note)
	}

	for _, child := range t.Children {
		lines = appendTask(lines, child, level+1)
	}
	return lines
}

// NewDocument returns an empty document for a path that does not exist yet,
// pre-seeded with the given section heading.
func NewDocument(path, section string) *task.Document {
	doc := &task.Document{Path: path}
	if section != "" {
		doc.Sections = append(doc.Sections, &task.Section{Heading: section, Level: 3})
	}
	return doc
}

// Package taskfile parses TASKS.md documents into task trees and serializes
// them back. The formatter is the exact inverse of the parser: canonical
// output parses to an equal document and re-serializes byte-identically,
// which is what lets vaultd write files the user also edits by hand.
package taskfile

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"vaultd/internal/errors"
	"vaultd/internal/task"
	"vaultd/internal/util"
)

// TaskFileNames are the file names recognized as task documents.
var TaskFileNames = []string{"TASKS.md", "01 TASKS.md"}

// IndentStep is the fixed indentation step between nesting levels, in spaces.
// Lines indented by a non-multiple attach at the next-lower valid depth.
const IndentStep = 3

// IsTaskFile reports whether a base file name is a recognized task document.
func IsTaskFile(name string) bool {
	for _, n := range TaskFileNames {
		if name == n {
			return true
		}
	}
	return false
}

var (
	taskLinePattern = regexp.MustCompile(`^(\s*)- \[(.)\] (.+)$`)
	headingPattern  = regexp.MustCompile(`^(#+)\s+(.*)$`)
)

// indentLevel converts leading whitespace to a 0-based nesting level. Tabs
// count as one step each.
func indentLevel(indent string) int {
	spaces := len(strings.ReplaceAll(indent, "\t", strings.Repeat(" ", IndentStep)))
	return spaces / IndentStep
}

// Parse converts markdown content into a Document. path is recorded on the
// document and used in error context only; Parse never touches the
// filesystem.
func Parse(content, path string) (*task.Document, error) {
	lines := strings.Split(content, "\n")
	frontmatter, bodyStart := extractFrontmatter(lines)

	doc := &task.Document{Path: path, Frontmatter: frontmatter}

	var currentSection *task.Section
	var stack []*task.Task
	var currentTask *task.Task
	seen := make(map[string]int) // id -> line number of first occurrence

	for i := bodyStart; i < len(lines); i++ {
		line := lines[i]
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}

		if m := headingPattern.FindStringSubmatch(stripped); m != nil {
			currentSection = &task.Section{Heading: strings.TrimSpace(m[2]), Level: len(m[1])}
			doc.Sections = append(doc.Sections, currentSection)
			stack = stack[:0]
			currentTask = nil
			continue
		}

		if strings.HasPrefix(stripped, "- [") && !strings.HasPrefix(stripped, "- [[") {
			m := taskLinePattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}

			title, tags := task.DecodeLine(m[3])
			t := &task.Task{
				Title:       title,
				Status:      glyphStatus(m[2]),
				Tags:        tags,
				ID:          tags.Get(task.TagID),
				IndentLevel: indentLevel(m[1]),
				LineNumber:  i,
			}

			if t.ID != "" {
				if first, dup := seen[t.ID]; dup {
					return nil, errors.Newf(errors.CodeParseFailed,
						"duplicate task id %q in %s", t.ID, path).
						WithWhy(strings.TrimSpace(lines[i])).
						WithFix(lineContext(path, first, i))
				}
				seen[t.ID] = i
			}

			// Pop to the nearest enclosing task; anything at the same or a
			// deeper recorded level is a sibling or closed subtree.
			for len(stack) > 0 && stack[len(stack)-1].IndentLevel >= t.IndentLevel {
				stack = stack[:len(stack)-1]
			}

			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				t.Section = parent.Section
				t.SectionLevel = parent.SectionLevel
				parent.Children = append(parent.Children, t)
			} else {
				if currentSection == nil {
					// Tasks before any heading land in an implicit section.
					currentSection = &task.Section{}
					doc.Sections = append(doc.Sections, currentSection)
				}
				t.Section = currentSection.Heading
				t.SectionLevel = currentSection.Level
				currentSection.Tasks = append(currentSection.Tasks, t)
			}

			stack = append(stack, t)
			currentTask = t
			continue
		}

		// Freeform note: any deeper-indented non-checklist line under the
		// current task. Stored with its bullet prefix (if any) intact.
		if currentTask != nil {
			indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			if indentLevel(indent) > currentTask.IndentLevel {
				currentTask.Notes = append(currentTask.Notes, stripped)
			}
		}
	}

	return doc, nil
}

// ParseFile reads and parses a task document from disk.
func ParseFile(path string) (*task.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeIOFailed, "read "+path, err)
	}
	return Parse(string(data), path)
}

// WriteFile serializes a document and writes it atomically to its path.
func WriteFile(doc *task.Document) error {
	if err := util.AtomicWriteFile(doc.Path, []byte(Format(doc)), 0644); err != nil {
		return errors.Wrap(errors.CodeIOFailed, "write "+doc.Path, err)
	}
	return nil
}

// glyphStatus adapts the captured checkbox character to the status mapping.
func glyphStatus(glyph string) task.Status {
	if s := strings.TrimSpace(glyph); s != "" {
		return task.CheckboxStatus(s[0])
	}
	return task.CheckboxStatus(' ')
}

func lineContext(path string, firstLine, dupLine int) string {
	return fmt.Sprintf("edit %s: the id appears on lines %d and %d; remove one",
		path, firstLine+1, dupLine+1)
}

// extractFrontmatter returns the verbatim frontmatter lines (including the
// --- delimiters) and the index of the first body line. An unclosed
// frontmatter block is treated as body.
func extractFrontmatter(lines []string) ([]string, int) {
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) || strings.TrimSpace(lines[i]) != "---" {
		return nil, 0
	}

	fm := []string{lines[i]}
	for j := i + 1; j < len(lines); j++ {
		fm = append(fm, lines[j])
		if strings.TrimSpace(lines[j]) == "---" {
			return fm, j + 1
		}
	}
	return nil, 0
}

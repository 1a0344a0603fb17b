package task

import (
	"regexp"
	"strings"
)

// Well-known tag names. Anything else is carried in the tag map untouched so
// new vocabulary can appear in files without a schema change.
const (
	TagID        = "id"
	TagDue       = "due"
	TagScheduled = "scheduled"
	TagCreated   = "created"
	TagCompleted = "completed"
	TagBlocked   = "blocked"
	TagEstimate  = "estimate"
	TagActual    = "actual"
	TagStub      = "stub"
)

// tagEmoji maps tag names to their emoji glyph (Obsidian Tasks compatible).
// Tags in this map render as "<emoji> <value>"; everything else renders as
// "#name:value" or "#name" when the value is empty.
var tagEmoji = map[string]string{
	TagID:        "\U0001F194", // 🆔
	TagDue:       "\U0001F4C5", // 📅
	TagScheduled: "⏳",     // ⏳
	TagCreated:   "➕",     // ➕
	TagCompleted: "✅",     // ✅
	TagBlocked:   "⛔",     // ⛔
}

// emojiTag is the inverse of tagEmoji.
var emojiTag = func() map[string]string {
	m := make(map[string]string, len(tagEmoji))
	for name, glyph := range tagEmoji {
		m[glyph] = name
	}
	return m
}()

// canonicalOrder is the fixed priority order for rendering known tags.
// Unknown tags follow in their original insertion order.
var canonicalOrder = []string{
	TagID, TagDue, TagScheduled, TagEstimate, TagBlocked,
	TagCreated, TagCompleted, TagStub,
}

// Tags is an insertion-ordered string-to-string map. Order matters: unknown
// tags must survive decode→encode in the order they appeared.
type Tags struct {
	keys   []string
	values map[string]string
}

// NewTags creates an empty tag map.
func NewTags() *Tags {
	return &Tags{values: make(map[string]string)}
}

// Get returns the value for name. Empty string for flag tags and absent tags;
// use Has to tell them apart.
func (t *Tags) Get(name string) string {
	return t.values[name]
}

// Has reports whether name is present.
func (t *Tags) Has(name string) bool {
	_, ok := t.values[name]
	return ok
}

// Set stores a value, appending the key to the order if it is new.
func (t *Tags) Set(name, value string) {
	if _, ok := t.values[name]; !ok {
		t.keys = append(t.keys, name)
	}
	t.values[name] = value
}

// Delete removes a tag. Removing an absent tag is a no-op.
func (t *Tags) Delete(name string) {
	if _, ok := t.values[name]; !ok {
		return
	}
	delete(t.values, name)
	for i, k := range t.keys {
		if k == name {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the tag names in insertion order.
func (t *Tags) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Len returns the number of tags.
func (t *Tags) Len() int {
	return len(t.keys)
}

// Map returns a plain map copy of the tags (order lost).
func (t *Tags) Map() map[string]string {
	out := make(map[string]string, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy.
func (t *Tags) Clone() *Tags {
	c := NewTags()
	for _, k := range t.keys {
		c.Set(k, t.values[k])
	}
	return c
}

// tagPattern matches one tag occurrence: "#name:value", "<emoji> value", or a
// bare "#name" flag. Built once from the emoji table.
var tagPattern = func() *regexp.Regexp {
	glyphs := make([]string, 0, len(tagEmoji))
	for _, g := range tagEmoji {
		glyphs = append(glyphs, regexp.QuoteMeta(g))
	}
	// Longest-first is unnecessary here since no glyph is a prefix of another.
	alt := strings.Join(glyphs, "|")
	return regexp.MustCompile(`(?:#([\w/-]+):|(` + alt + `)\s+)(\S+)|#([\w/-]+)`)
}()

var wikiLinkPattern = regexp.MustCompile(`\[\[.*?\]\]`)

// DecodeLine splits raw task-line content into a clean title and its tags.
// Tags sit at the end of the line; the title is everything before the
// earliest tag occurrence, whitespace-trimmed. Wiki-links ([[...]]) are
// masked before scanning so section (#) and block (^) references inside them
// are not mistaken for tags.
func DecodeLine(raw string) (string, *Tags) {
	tags := NewTags()
	earliest := len(raw)

	// Mask wiki-links with equal-length filler so byte offsets stay aligned.
	masked := wikiLinkPattern.ReplaceAllStringFunc(raw, func(m string) string {
		return strings.Repeat(" ", len(m))
	})

	for _, m := range tagPattern.FindAllStringSubmatchIndex(masked, -1) {
		switch {
		case m[2] >= 0: // #name:value
			tags.Set(masked[m[2]:m[3]], masked[m[6]:m[7]])
		case m[4] >= 0: // emoji value
			tags.Set(emojiTag[masked[m[4]:m[5]]], masked[m[6]:m[7]])
		case m[8] >= 0: // #name flag
			tags.Set(masked[m[8]:m[9]], "")
		}
		if m[0] < earliest {
			earliest = m[0]
		}
	}

	return strings.TrimSpace(raw[:earliest]), tags
}

// EncodeTag renders a single tag in canonical form.
func EncodeTag(name, value string) string {
	if glyph, ok := tagEmoji[name]; ok {
		return glyph + " " + value
	}
	if value != "" {
		return "#" + name + ":" + value
	}
	return "#" + name
}

// EncodeTags renders all tags space-separated in canonical order: known tags
// by fixed priority, then unknown tags in insertion order. Returns "" when
// the map is empty.
func (t *Tags) EncodeTags() string {
	if t == nil || len(t.keys) == 0 {
		return ""
	}

	known := make(map[string]bool, len(canonicalOrder))
	parts := make([]string, 0, len(t.keys))
	for _, name := range canonicalOrder {
		known[name] = true
		if v, ok := t.values[name]; ok {
			parts = append(parts, EncodeTag(name, v))
		}
	}
	for _, name := range t.keys {
		if !known[name] {
			parts = append(parts, EncodeTag(name, t.values[name]))
		}
	}
	return strings.Join(parts, " ")
}

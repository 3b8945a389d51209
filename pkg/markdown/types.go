// Package markdown computes the per-note metadata the note store exposes:
// sections, embeds, wikilinks, block anchors, tags and frontmatter.
// All offsets are byte offsets into the original note text.
package markdown

// Position is a byte span in the original note text.
type Position struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Line  int `json:"line"` // 0-based line of Start
}

// Len returns the length of the span
func (p Position) Len() int {
	return p.End - p.Start
}

// Slice extracts the text covered by this span
func (p Position) Slice(text string) string {
	if p.Start < 0 || p.End > len(text) || p.Start > p.End {
		return ""
	}
	return text[p.Start:p.End]
}

// Section types
const (
	SectionYAML          = "yaml"
	SectionHeading       = "heading"
	SectionParagraph     = "paragraph"
	SectionList          = "list"
	SectionCode          = "code"
	SectionBlockquote    = "blockquote"
	SectionHTML          = "html"
	SectionThematicBreak = "thematicBreak"
)

// Section is a top-level markdown block.
type Section struct {
	Type     string   `json:"type"`
	Position Position `json:"position"`
}

// Reference is a wikilink ([[Target|Label]]) or an embed (![[Target#^id]]).
type Reference struct {
	Link        string   `json:"link"`
	Original    string   `json:"original"`
	DisplayText string   `json:"displayText,omitempty"`
	Embed       bool     `json:"embed,omitempty"`
	Position    Position `json:"position"`
}

// Block is a paragraph or list item carrying a ^anchor.
type Block struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
}

// Metadata is everything the extraction pipeline needs to know about a note
// without re-reading it.
type Metadata struct {
	Frontmatter map[string]any   `json:"frontmatter,omitempty"`
	Sections    []Section        `json:"sections"`
	Embeds      []Reference      `json:"embeds,omitempty"`
	Links       []Reference      `json:"links,omitempty"`
	Blocks      map[string]Block `json:"blocks,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
}

// FrontmatterString returns a string frontmatter field, or "".
func (m *Metadata) FrontmatterString(key string) string {
	if m == nil || m.Frontmatter == nil {
		return ""
	}
	if v, ok := m.Frontmatter[key].(string); ok {
		return v
	}
	return ""
}

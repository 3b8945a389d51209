package markdown

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

var (
	md = goldmark.New()

	// ^anchor at the end of a line
	blockIDRe = regexp.MustCompile(`(?:^|\s)\^([A-Za-z0-9-]+)\s*$`)

	// #tag, not a heading marker and not an HTML entity
	tagRe = regexp.MustCompile(`(?:^|[\s(])#([\p{L}\p{N}_/-]*[\p{L}_/-][\p{L}\p{N}_/-]*)`)
)

// Parse computes the metadata of a note.
func Parse(content string) *Metadata {
	meta := &Metadata{Blocks: make(map[string]Block)}
	lines := newLineIndex(content)

	bodyStart := 0
	if raw, start, ok := SplitFrontmatter(content); ok {
		var fm map[string]any
		if err := yaml.Unmarshal([]byte(raw), &fm); err == nil {
			meta.Frontmatter = fm
		}
		end := len(strings.TrimRight(content[:start], "\r\n"))
		meta.Sections = append(meta.Sections, Section{
			Type:     SectionYAML,
			Position: Position{Start: 0, End: end},
		})
		bodyStart = start
	}

	meta.Sections = append(meta.Sections, parseSections(content, bodyStart)...)
	for i := range meta.Sections {
		meta.Sections[i].Position.Line = lines.lineOf(meta.Sections[i].Position.Start)
	}

	var skip []Position
	for _, s := range meta.Sections {
		if s.Type == SectionCode || s.Type == SectionYAML {
			skip = append(skip, s.Position)
		}
	}
	for _, ref := range scanReferences(content, bodyStart, skip) {
		ref.Position.Line = lines.lineOf(ref.Position.Start)
		if ref.Embed {
			meta.Embeds = append(meta.Embeds, ref)
		} else {
			meta.Links = append(meta.Links, ref)
		}
	}

	tags := make(map[string]struct{})
	for _, t := range frontmatterTags(meta.Frontmatter) {
		tags[t] = struct{}{}
	}
	for _, s := range meta.Sections {
		if s.Type == SectionCode || s.Type == SectionYAML {
			continue
		}
		scanBlocks(content, s, meta.Blocks, lines)
		for _, m := range tagRe.FindAllStringSubmatch(s.Position.Slice(content), -1) {
			tags[NormalizeTag(m[1])] = struct{}{}
		}
	}
	for t := range tags {
		meta.Tags = append(meta.Tags, t)
	}
	sort.Strings(meta.Tags)

	return meta
}

// SplitFrontmatter returns the raw YAML between a leading pair of --- lines
// and the offset at which the body starts.
func SplitFrontmatter(content string) (raw string, bodyStart int, ok bool) {
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return "", 0, false
	}
	first := strings.IndexByte(content, '\n') + 1
	rest := content[first:]

	idx := 0
	for {
		nl := strings.IndexByte(rest[idx:], '\n')
		line := rest[idx:]
		if nl != -1 {
			line = rest[idx : idx+nl]
		}
		if strings.TrimRight(line, "\r") == "---" {
			end := first + idx + len(line)
			if nl != -1 {
				end++
			}
			return rest[:idx], end, true
		}
		if nl == -1 {
			return "", 0, false
		}
		idx += nl + 1
	}
}

// NormalizeTag lowercases a tag and strips its leading #.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
}

// ParseLinktext splits "Note#^block" into ("Note", "#^block").
func ParseLinktext(link string) (path, subpath string) {
	if i := strings.IndexByte(link, '#'); i >= 0 {
		return strings.TrimSpace(link[:i]), link[i:]
	}
	return strings.TrimSpace(link), ""
}

// =============================================================================
// Sections
// =============================================================================

type sectionStart struct {
	typ   string
	start int
}

func parseSections(content string, bodyStart int) []Section {
	body := []byte(content[bodyStart:])
	doc := md.Parser().Parse(text.NewReader(body))

	var starts []sectionStart
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		start, ok := blockStart(n, body)
		if !ok {
			continue
		}
		starts = append(starts, sectionStart{typ: sectionType(n), start: start})
	}
	sort.SliceStable(starts, func(i, j int) bool { return starts[i].start < starts[j].start })

	sections := make([]Section, 0, len(starts))
	for i, s := range starts {
		if i > 0 && starts[i-1].start == s.start {
			continue
		}
		end := len(body)
		if i+1 < len(starts) {
			end = starts[i+1].start
		}
		trimmed := strings.TrimRight(string(body[s.start:end]), " \t\r\n")
		if trimmed == "" {
			continue
		}
		sections = append(sections, Section{
			Type: s.typ,
			Position: Position{
				Start: bodyStart + s.start,
				End:   bodyStart + s.start + len(trimmed),
			},
		})
	}
	return sections
}

// blockStart finds the beginning of the first source line a block covers.
func blockStart(n ast.Node, src []byte) (int, bool) {
	start := -1
	consider := func(off int) {
		off = lineStart(src, off)
		if start == -1 || off < start {
			start = off
		}
	}

	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || c.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		if fc, ok := c.(*ast.FencedCodeBlock); ok {
			if fc.Info != nil {
				consider(fc.Info.Segment.Start)
			} else if fc.Lines().Len() > 0 {
				consider(prevLineStart(src, fc.Lines().At(0).Start))
			}
			return ast.WalkSkipChildren, nil
		}
		if lines := c.Lines(); lines != nil && lines.Len() > 0 {
			consider(lines.At(0).Start)
		}
		return ast.WalkContinue, nil
	})

	return start, start >= 0
}

func sectionType(n ast.Node) string {
	switch n.Kind() {
	case ast.KindHeading:
		return SectionHeading
	case ast.KindList:
		return SectionList
	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		return SectionCode
	case ast.KindBlockquote:
		return SectionBlockquote
	case ast.KindHTMLBlock:
		return SectionHTML
	case ast.KindThematicBreak:
		return SectionThematicBreak
	default:
		return SectionParagraph
	}
}

func lineStart(src []byte, off int) int {
	if off > len(src) {
		off = len(src)
	}
	for off > 0 && src[off-1] != '\n' {
		off--
	}
	return off
}

func prevLineStart(src []byte, off int) int {
	s := lineStart(src, off)
	if s == 0 {
		return 0
	}
	return lineStart(src, s-1)
}

// =============================================================================
// Links, embeds, blocks, tags
// =============================================================================

func scanReferences(content string, from int, skip []Position) []Reference {
	var refs []Reference
	i := from
	for i < len(content) {
		next := strings.Index(content[i:], "[[")
		if next == -1 {
			break
		}
		i += next
		if inSpans(skip, i) {
			i += 2
			continue
		}

		closing := strings.Index(content[i+2:], "]]")
		if closing == -1 {
			break
		}
		end := i + 2 + closing + 2
		inner := content[i+2 : end-2]
		if strings.TrimSpace(inner) == "" || strings.ContainsAny(inner, "\n[") {
			i += 2
			continue
		}

		start := i
		embed := i > 0 && content[i-1] == '!'
		if embed {
			start = i - 1
		}

		target, label := inner, ""
		if p := strings.IndexByte(inner, '|'); p >= 0 {
			target, label = inner[:p], inner[p+1:]
		}

		refs = append(refs, Reference{
			Link:        strings.TrimSpace(target),
			Original:    content[start:end],
			DisplayText: label,
			Embed:       embed,
			Position:    Position{Start: start, End: end},
		})
		i = end
	}
	return refs
}

func inSpans(spans []Position, off int) bool {
	for _, s := range spans {
		if off >= s.Start && off < s.End {
			return true
		}
	}
	return false
}

// scanBlocks records ^anchors. A list item anchor covers its line, any other
// anchor covers the whole section.
func scanBlocks(content string, s Section, blocks map[string]Block, lines *lineIndex) {
	text := s.Position.Slice(content)
	off := 0
	for off <= len(text) {
		nl := strings.IndexByte(text[off:], '\n')
		line := text[off:]
		if nl != -1 {
			line = text[off : off+nl]
		}

		if m := blockIDRe.FindStringSubmatch(line); m != nil {
			pos := s.Position
			if s.Type == SectionList {
				pos = Position{Start: s.Position.Start + off, End: s.Position.Start + off + len(line)}
			}
			pos.Line = lines.lineOf(pos.Start)
			if _, exists := blocks[m[1]]; !exists {
				blocks[m[1]] = Block{ID: m[1], Position: pos}
			}
		}

		if nl == -1 {
			break
		}
		off += nl + 1
	}
}

func frontmatterTags(fm map[string]any) []string {
	if fm == nil {
		return nil
	}
	var raw []string
	switch v := fm["tags"].(type) {
	case string:
		raw = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = NormalizeTag(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// lineIndex maps byte offsets to 0-based line numbers.
type lineIndex struct {
	starts []int
}

func newLineIndex(content string) *lineIndex {
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{starts: starts}
}

func (l *lineIndex) lineOf(off int) int {
	return sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > off }) - 1
}

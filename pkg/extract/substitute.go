package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kittclouds/notesynth/pkg/markdown"
)

var (
	blockRefRe = regexp.MustCompile(`\^([a-zA-Z0-9]+)`)

	// [label](url) and ![alt](url); labels may not contain brackets so
	// wikilinks are left alone
	hyperlinkRe = regexp.MustCompile(`!?\[[^\[\]\n]*\]\([^()\n]*\)`)

	codeFenceRe = regexp.MustCompile("```[\\s\\S]*?```")

	// MarkerRe matches a substitution marker.
	MarkerRe = regexp.MustCompile(`%[0-9a-f]{4}%`)
)

// MarkerFunc returns a candidate marker of the form %xxxx%.
type MarkerFunc func() string

// RandomMarker draws a marker from a random UUID.
func RandomMarker() string {
	return "%" + uuid.NewString()[:4] + "%"
}

// SequentialMarkers returns a generator counting up from start. Tests use it
// for predictable output.
func SequentialMarkers(start int) MarkerFunc {
	n := start
	return func() string {
		m := fmt.Sprintf("%%%04x%%", n&0xffff)
		n++
		return m
	}
}

// SubstituteBlockReferences replaces every ^id anchor in text with a fresh
// marker and records the block reference it stands for. Markdown hyperlinks
// are stripped first. Markers are distinct within one call and never
// collide with marker-shaped text already present.
//
// An anchor that is the subpath of a wikilink ([[Other#^id]]) refers to a
// block of Other, so its reference names Other instead of title.
func SubstituteBlockReferences(title, text string, next MarkerFunc) ([]BlockRefSubstitution, string) {
	if next == nil {
		next = RandomMarker
	}
	text = hyperlinkRe.ReplaceAllString(text, "")

	matches := blockRefRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []BlockRefSubstitution{}, text
	}

	used := make(map[string]struct{}, len(matches))
	subs := make([]BlockRefSubstitution, 0, len(matches))

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		id := text[m[2]:m[3]]

		owner := title
		if linked := linkOwner(text, start); linked != "" {
			owner = linked
		}

		marker := uniqueMarker(next, used, text)
		used[marker] = struct{}{}
		subs = append(subs, BlockRefSubstitution{
			Template:       marker,
			BlockReference: "![[" + owner + "#^" + id + "]]",
		})

		b.WriteString(text[last:start])
		b.WriteString(marker)
		last = end
	}
	b.WriteString(text[last:])

	return subs, b.String()
}

// linkOwner returns the link path when the anchor at pos is the "#^id"
// subpath of a wikilink on the same line.
func linkOwner(text string, pos int) string {
	if pos == 0 || text[pos-1] != '#' {
		return ""
	}
	lineStart := strings.LastIndexByte(text[:pos], '\n') + 1
	open := strings.LastIndex(text[lineStart:pos], "[[")
	if open == -1 {
		return ""
	}
	open += lineStart
	inner := text[open+2 : pos-1]
	if strings.Contains(inner, "]]") || strings.ContainsAny(inner, "|#") {
		return ""
	}
	return strings.TrimSpace(inner)
}

func uniqueMarker(next MarkerFunc, used map[string]struct{}, text string) string {
	free := func(m string) bool {
		if !isMarker(m) {
			return false
		}
		if _, taken := used[m]; taken {
			return false
		}
		return !strings.Contains(text, m)
	}

	var m string
	for i := 0; i < 16; i++ {
		m = next()
		if free(m) {
			return m
		}
	}

	// The generator keeps colliding; probe forward from its last answer.
	v := 0
	if isMarker(m) {
		n, _ := strconv.ParseUint(m[1:5], 16, 16)
		v = int(n)
	}
	for i := 0; i <= 0xffff; i++ {
		c := fmt.Sprintf("%%%04x%%", (v+i)&0xffff)
		if free(c) {
			return c
		}
	}
	return m
}

func isMarker(m string) bool {
	return len(m) == 6 && MarkerRe.MatchString(m)
}

// CleanContents strips a leading frontmatter block and fenced code blocks.
func CleanContents(text string) string {
	if _, start, ok := markdown.SplitFrontmatter(text); ok {
		text = text[start:]
	}
	text = codeFenceRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ResolveMarkers replaces every known marker in text with its block
// reference. Unknown markers are left as they are.
func ResolveMarkers(text string, subs []BlockRefSubstitution) string {
	if len(subs) == 0 {
		return text
	}
	refs := make(map[string]string, len(subs))
	for _, s := range subs {
		if _, dup := refs[s.Template]; !dup {
			refs[s.Template] = s.BlockReference
		}
	}
	return MarkerRe.ReplaceAllStringFunc(text, func(m string) string {
		if ref, ok := refs[m]; ok {
			return ref
		}
		return m
	})
}

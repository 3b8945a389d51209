package extract

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var anchorRe = regexp.MustCompile(`\^[a-zA-Z0-9]+`)

func TestSubstituteBlockReferencesRoundTrip(t *testing.T) {
	text := "First idea ^one\n\nSecond idea ^two\n\n- item ^three"

	subs, out := SubstituteBlockReferences("Ideas", text, SequentialMarkers(0))

	require.Len(t, subs, 3)
	assert.Equal(t, "First idea %0000%\n\nSecond idea %0001%\n\n- item %0002%", out)
	assert.Equal(t, []BlockRefSubstitution{
		{Template: "%0000%", BlockReference: "![[Ideas#^one]]"},
		{Template: "%0001%", BlockReference: "![[Ideas#^two]]"},
		{Template: "%0002%", BlockReference: "![[Ideas#^three]]"},
	}, subs)

	for _, s := range subs {
		assert.Equal(t, 1, strings.Count(out, s.Template), "marker %s", s.Template)
	}
	assert.False(t, anchorRe.MatchString(out), "no anchor may survive")

	// the input is untouched and the mapping reverses the substitution
	assert.Contains(t, text, "^one")
	assert.Equal(t,
		"First idea ![[Ideas#^one]]\n\nSecond idea ![[Ideas#^two]]\n\n- item ![[Ideas#^three]]",
		ResolveMarkers(out, subs))
}

func TestSubstituteRandomMarkersAreDistinct(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("line ^a")
		b.WriteString(strings.Repeat("b", i%7))
		b.WriteString("\n")
	}

	subs, out := SubstituteBlockReferences("Log", b.String(), nil)

	require.Len(t, subs, 200)
	seen := map[string]bool{}
	for _, s := range subs {
		assert.Regexp(t, `^%[0-9a-f]{4}%$`, s.Template)
		assert.False(t, seen[s.Template], "duplicate marker %s", s.Template)
		seen[s.Template] = true
		assert.Equal(t, 1, strings.Count(out, s.Template))
	}
}

func TestSubstituteCollidingGenerator(t *testing.T) {
	stuck := func() string { return "%0000%" }
	text := "already cites %0001% here ^x and ^y and ^z"

	subs, out := SubstituteBlockReferences("Note", text, stuck)

	require.Len(t, subs, 3)
	assert.Equal(t, "%0000%", subs[0].Template)
	assert.Equal(t, "%0002%", subs[1].Template, "%0001% is already in the text")
	assert.Equal(t, "%0003%", subs[2].Template)
	assert.Equal(t, "already cites %0001% here %0000% and %0002% and %0003%", out)
}

func TestSubstituteStripsHyperlinks(t *testing.T) {
	text := "See [the docs](https://example.com/a_b) and ![img](pic.png) but keep [[Wiki Link]] ^k"

	subs, out := SubstituteBlockReferences("Note", text, SequentialMarkers(10))

	require.Len(t, subs, 1)
	assert.NotContains(t, out, "example.com/a_")
	assert.NotContains(t, out, "pic.png")
	assert.Contains(t, out, "[[Wiki Link]]")
	assert.True(t, strings.HasSuffix(out, "%000a%"))
}

func TestSubstituteAnchorInsideLabelIsDropped(t *testing.T) {
	subs, out := SubstituteBlockReferences("Note", "x [see ^abc](http://u) y", SequentialMarkers(0))
	assert.Empty(t, subs)
	assert.Equal(t, "x  y", out)
}

func TestSubstituteWikilinkSubpathNamesLinkedNote(t *testing.T) {
	subs, out := SubstituteBlockReferences("Journal", "as in [[Seneca#^letter7]] and here ^own", SequentialMarkers(0))

	require.Len(t, subs, 2)
	assert.Equal(t, "![[Seneca#^letter7]]", subs[0].BlockReference)
	assert.Equal(t, "![[Journal#^own]]", subs[1].BlockReference)
	assert.Equal(t, "as in [[Seneca#%0000%]] and here %0001%", out)
}

func TestSubstituteNoAnchors(t *testing.T) {
	subs, out := SubstituteBlockReferences("Note", "plain text", nil)
	assert.NotNil(t, subs)
	assert.Empty(t, subs)
	assert.Equal(t, "plain text", out)
}

func TestCleanContents(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"frontmatter", "---\ntags: [a]\n---\nBody text\n", "Body text"},
		{"code fences", "Before\n```go\nfunc main() {}\n```\nAfter", "Before\n\nAfter"},
		{"both", "---\nx: 1\n---\n\n```\ncode\n```\n\nText", "Text"},
		{"dashes later are kept", "Intro\n---\nnot: frontmatter\n---\n", "Intro\n---\nnot: frontmatter\n---"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanContents(tt.in))
		})
	}
}

func TestResolveMarkersLeavesUnknown(t *testing.T) {
	subs := []BlockRefSubstitution{{Template: "%abcd%", BlockReference: "![[N#^x]]"}}
	assert.Equal(t, "a ![[N#^x]] b %ffff%", ResolveMarkers("a %abcd% b %ffff%", subs))
}

func TestParseStrategy(t *testing.T) {
	s, ok := ParseStrategy("longcontent")
	assert.True(t, ok)
	assert.Equal(t, LongContent, s)

	s, ok = ParseStrategy("AllEvergreenReferrers")
	assert.True(t, ok)
	assert.Equal(t, AllEvergreenReferrers, s)

	s, ok = ParseStrategy("Bogus")
	assert.False(t, ok)
	assert.Equal(t, Basic, s)

	assert.Equal(t, "SingleEvergreenReferrer", SingleEvergreenReferrer.String())
	assert.Equal(t, "Basic", Strategy(42).String())
}

package conversation

import (
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedIDs(offset int, _ string) string { return "plan-" + strconv.Itoa(offset) }

func doc(lines ...string) string { return strings.Join(lines, "\n") }

func TestReconstructEndToEnd(t *testing.T) {
	text := doc(
		"# Weekly synthesis",
		"",
		"```reason",
		"sources: []",
		`guidance: "summarize"`,
		"```",
		"",
		"> [!💭]+",
		"> Summary text here.",
		`> <div style="display:none">[{"assistantMessageType":"synthesis"}]</div>`,
		"> ",
		"",
		"```reason",
		"",
		"```",
		"",
	)

	r := NewReconstructor(WithIDFunc(fixedIDs))
	got := r.Turns(text)

	firstID := "plan-" + strconv.Itoa(strings.Index(text, "```reason"))
	lastID := "plan-" + strconv.Itoa(strings.LastIndex(text, "```reason"))
	want := []Turn{
		{
			Role:    RoleUser,
			Content: "summarize",
			Metadata: []Metadata{{
				ID:      firstID,
				Type:    TypeSynthesisPlan,
				Sources: []Source{},
				Prompt:  "summarize",
			}},
		},
		{
			Role:     RoleAssistant,
			Content:  "Summary text here.",
			Metadata: []Metadata{{Type: TypeSynthesis}},
		},
		{
			Role:     RoleUser,
			Content:  "",
			Metadata: []Metadata{{ID: lastID, Type: TypeSynthesisPlan, Sources: []Source{}}},
		},
	}
	require.Equal(t, "plan-20", firstID)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Turns() mismatch (-want +got):\n%s", diff)
	}
}

// A callout is only complete once something follows it; one that runs to
// the end of the document may still be streaming in.
func TestReconstructCalloutAtEndOfDocument(t *testing.T) {
	request := doc("```reason", "guidance: go", "```", "", "> [!💭]+", "> answer")

	tests := []struct {
		name      string
		text      string
		assistant bool
	}{
		{"no newline", request, false},
		{"trailing newline", request + "\n", false},
		{"trailing quote line", request + "\n> ", false},
		{"blank line then end", request + "\n\n", true},
		{"followed by text", request + "\nafter", true},
		{"followed by request", request + "\n\n```reason\n```\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := NewReconstructor(WithIDFunc(fixedIDs)).Turns(tt.text)
			require.NotEmpty(t, turns)
			assert.Equal(t, RoleUser, turns[0].Role)

			var answers []string
			for _, turn := range turns {
				if turn.Role == RoleAssistant {
					answers = append(answers, turn.Content)
				}
			}
			if tt.assistant {
				assert.Equal(t, []string{"answer"}, answers)
			} else {
				assert.Empty(t, answers)
			}
		})
	}
}

func TestReconstructIsIdempotent(t *testing.T) {
	text := doc(
		"```reason",
		"sources:",
		"  - query: '#daily'",
		"    strategy: LongContent",
		"guidance: what changed?",
		"```",
		"> [!💭]+",
		"> Line one",
		"> line two %ab12%",
		`> <div style="display:none">[{"id":"x1","assistantMessageType":"synthesis"}]</div>`,
		"",
		"```reason",
		"Just prose this time.",
		"```",
		"",
	)

	// the default ids are derived from the document, not random
	r := NewReconstructor()
	first := r.Turns(text)
	second := NewReconstructor().Turns(text)
	require.Len(t, first, 3)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("reconstruction is not stable (-first +second):\n%s", diff)
	}
	assert.NotEqual(t, first[0].Metadata[0].ID, first[2].Metadata[0].ID)
	assert.Equal(t, "Line one\nline two %ab12%", first[1].Content)
	assert.Equal(t, []Source{{Query: "#daily", Strategy: "LongContent"}}, first[0].Metadata[0].Sources)
}

func TestReconstructProseFallback(t *testing.T) {
	text := doc("```reason", "Tell me about: my habits, my goals", "and what links them", "```", "")
	turns := NewReconstructor(WithIDFunc(fixedIDs)).Turns(text)
	require.Len(t, turns, 1)
	assert.Equal(t, "Tell me about: my habits, my goals\nand what links them", turns[0].Content)
	assert.Equal(t, []Source{}, turns[0].Metadata[0].Sources)
	assert.Equal(t, turns[0].Content, turns[0].Metadata[0].Prompt)
}

func TestReconstructCursor(t *testing.T) {
	text := doc(
		"```reason",
		"guidance: one",
		"```",
		"> [!💭]+",
		"> first answer",
		"",
		"```reason",
		"guidance: two",
		"```",
		"",
	)
	r := NewReconstructor(WithIDFunc(fixedIDs))

	// the answer is only complete once something follows it
	assert.Len(t, r.Reconstruct(text, Cursor{Line: 4, Ch: 14}), 1)
	assert.Len(t, r.Reconstruct(text, Cursor{Line: 5, Ch: 0}), 1)
	assert.Len(t, r.Reconstruct(text, Cursor{Line: 6, Ch: 3}), 2)

	// the second request needs its closing fence
	assert.Len(t, r.Reconstruct(text, Cursor{Line: 7, Ch: 100}), 2)
	all := r.Reconstruct(text, Cursor{Line: 9, Ch: 0})
	require.Len(t, all, 3)
	assert.Equal(t, "two", all[2].Content)

	assert.Empty(t, r.Reconstruct(text, Cursor{Line: -1}))
	assert.Len(t, r.Reconstruct(text, Cursor{Line: 99}), 3)
}

func TestPrefixCountsCharacters(t *testing.T) {
	text := "> [!💭]+\n> héllo wörld"
	assert.Equal(t, "> [!💭]+", Prefix(text, Cursor{Line: 0, Ch: 99}))
	assert.Equal(t, "> [!💭]", Prefix(text, Cursor{Line: 0, Ch: 6}))
	assert.Equal(t, "> [!💭]+\n> hé", Prefix(text, Cursor{Line: 1, Ch: 4}))
}

func TestReconstructAggregator(t *testing.T) {
	lookup := aggregators{
		"Weekly review": {
			ID:       "agg-weekly",
			Sources:  []Source{{Query: `FROM "journal"`, Strategy: "LongContent"}},
			Guidance: "What went well this week?",
		},
	}
	text := doc(
		"```reason",
		"aggregator: Weekly review",
		"```",
		"```reason",
		"aggregator: Weekly review",
		"guidance: only about sleep",
		"```",
		"```reason",
		"aggregator: Unknown",
		"guidance: fallback",
		"```",
		"",
	)
	turns := NewReconstructor(WithIDFunc(fixedIDs), WithAggregators(lookup)).Turns(text)
	require.Len(t, turns, 3)

	want := []Metadata{{
		ID:      "agg-weekly",
		Type:    TypeSynthesisPlan,
		Sources: []Source{{Query: `FROM "journal"`, Strategy: "LongContent"}},
		Prompt:  "What went well this week?",
	}}
	if diff := cmp.Diff(want, turns[0].Metadata); diff != "" {
		t.Errorf("aggregator plan mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "What went well this week?", turns[0].Content)

	assert.Equal(t, "agg-weekly", turns[1].Metadata[0].ID, "the stable id is reused")
	assert.Equal(t, "only about sleep", turns[1].Content)

	assert.True(t, strings.HasPrefix(turns[2].Metadata[0].ID, "plan-"), "unknown aggregators get a fresh id")
	assert.Equal(t, []Source{}, turns[2].Metadata[0].Sources)
}

type aggregators map[string]Aggregator

func (a aggregators) LookupAggregator(name string) (Aggregator, bool) {
	agg, ok := a[name]
	return agg, ok
}

func TestSegmenterAdversarial(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Block
	}{
		{
			name: "unterminated request hides the rest",
			text: doc("```reason", "guidance: a", "> [!💭]+", "> b", "", "more"),
			want: nil,
		},
		{
			name: "nested fence closes the request early",
			text: doc("```reason", "guidance: |", "  ```python", "  print(1)", "```", "  ```", "after"),
			want: []Block{{Role: RoleUser, Offset: 0, Body: "guidance: |\n  ```python\n  print(1)"}},
		},
		{
			name: "adjacent requests",
			text: doc("```reason", "```reason", "x", "```", "```enzyme", "y", "```"),
			want: []Block{
				{Role: RoleUser, Offset: 0, Body: "```reason\nx"},
				{Role: RoleUser, Offset: 26, Body: "y"},
			},
		},
		{
			name: "malformed callout next to a request",
			text: doc("> [!💭]", "> not a header", "```reason", "q", "```"),
			want: []Block{{Role: RoleUser, Offset: 25, Body: "q"}},
		},
		{
			name: "answer at end of document is incomplete",
			text: doc("> [!💭]+", "> partial", ""),
			want: nil,
		},
		{
			name: "answer followed by a blank line and more",
			text: doc("> [!💭]+", "> done", "", ""),
			want: []Block{{Role: RoleAssistant, Offset: 0, Body: "done"}},
		},
		{
			name: "callout inside other code is not an answer",
			text: doc("```markdown", "> [!💭]+", "> quoted", "```", "text"),
			want: nil,
		},
		{
			name: "quote lines without a space",
			text: doc("> [!💭]+", ">a", ">", "> b", "x"),
			want: []Block{{Role: RoleAssistant, Offset: 0, Body: "a\n\nb"}},
		},
		{
			name: "crlf line endings",
			text: "```reason\r\nguidance: g\r\n```\r\n",
			want: []Block{{Role: RoleUser, Offset: 0, Body: "guidance: g"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LineSegmenter{}.Segment(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Segment() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAssistantInvalidMetadata(t *testing.T) {
	text := doc(
		"> [!💭]+",
		"> Answer body",
		`> <div style="display:none">[{"assistantMessageType": </div>`,
		"",
		"",
	)
	turns := NewReconstructor().Turns(text)
	require.Len(t, turns, 1)
	assert.Nil(t, turns[0].Metadata, "invalid JSON drops the metadata")
	assert.Equal(t, "Answer body", turns[0].Content, "the turn is kept")
}

type fixedSegmenter []Block

func (f fixedSegmenter) Segment(string) []Block { return f }

func TestCustomSegmenter(t *testing.T) {
	r := NewReconstructor(
		WithIDFunc(fixedIDs),
		WithSegmenter(fixedSegmenter{{Role: RoleAssistant, Body: "hi"}, {Role: "system", Body: "x"}}),
	)
	assert.Equal(t, []Turn{{Role: RoleAssistant, Content: "hi"}}, r.Turns("ignored"))

	var zero Reconstructor
	assert.Len(t, zero.Turns(doc("```reason", "q", "```", "")), 1)
}

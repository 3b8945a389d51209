package conversation

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlockContents(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want BlockContents
	}{
		{
			name: "choice",
			raw:  "guidance: what did I learn?\nchoice: LongContent",
			want: BlockContents{
				Prompt:  "what did I learn?",
				Sources: []Source{},
				Choice:  &Choice{Strategy: "LongContent", Line: 1},
			},
		},
		{
			name: "choice wins over sources",
			raw:  "choice: RecentMentions\nsources:\n  - query: '#daily'",
			want: BlockContents{
				Sources: []Source{},
				Choice:  &Choice{Strategy: "RecentMentions", Line: 0},
			},
		},
		{
			name: "sources with guidance",
			raw: "sources:\n" +
				"  - query: 'FROM \"journal\"'\n" +
				"    strategy: LongContent\n" +
				"  - dql: 'FROM [[Stoicism]]'\n" +
				"    strategy: SingleEvergreenReferrer\n" +
				"    evergreen: '[[Stoicism]]'\n" +
				"guidance: connect these",
			want: BlockContents{
				Prompt: "connect these",
				Sources: []Source{
					{Strategy: "LongContent", Query: `FROM "journal"`},
					{Strategy: "SingleEvergreenReferrer", Query: "FROM [[Stoicism]]", Evergreen: "[[Stoicism]]"},
				},
			},
		},
		{
			name: "tab indented sources",
			raw:  "sources:\n\t- query: '#daily'\nguidance: g",
			want: BlockContents{Prompt: "g", Sources: []Source{{Query: "#daily"}}},
		},
		{
			name: "guidance alone",
			raw:  "sources: []\nguidance: \"summarize\"",
			want: BlockContents{Prompt: "summarize", Sources: []Source{}},
		},
		{
			name: "aggregator",
			raw:  "aggregator: Weekly review\nguidance: focus on sleep",
			want: BlockContents{Prompt: "focus on sleep", Sources: []Source{}, Aggregator: "Weekly review"},
		},
		{
			name: "prose",
			raw:  "What themes keep coming back in my journal?",
			want: BlockContents{Prompt: "What themes keep coming back in my journal?", Sources: []Source{}},
		},
		{
			name: "prose with a colon",
			raw:  "Question: what keeps coming back?",
			want: BlockContents{Prompt: "Question: what keeps coming back?", Sources: []Source{}},
		},
		{
			name: "broken yaml",
			raw:  "sources: [unclosed\nguidance: x",
			want: BlockContents{Prompt: "sources: [unclosed\nguidance: x", Sources: []Source{}},
		},
		{
			name: "sources of the wrong shape",
			raw:  "sources: just a string",
			want: BlockContents{Prompt: "sources: just a string", Sources: []Source{}},
		},
		{
			name: "empty",
			raw:  "",
			want: BlockContents{Prompt: "", Sources: []Source{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseBlockContents(tt.raw)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseBlockContents() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlanSources(t *testing.T) {
	choice := ParseBlockContents("choice: LongContent")
	assert.Equal(t, []Source{{Strategy: "LongContent"}}, choice.PlanSources())

	listed := ParseBlockContents("sources:\n  - query: '#daily'")
	got := listed.PlanSources()
	got[0].Query = "changed"
	assert.Equal(t, "#daily", listed.Sources[0].Query, "plan sources are a copy")
}

func TestSetChoice(t *testing.T) {
	raw := "guidance: reflect\nchoice: RecentMentions\n"
	out, ok := SetChoice(raw, "LongContent")
	require.True(t, ok)
	assert.Equal(t, "guidance: reflect\nchoice: LongContent\n", out)

	b := ParseBlockContents(out)
	require.NotNil(t, b.Choice)
	assert.Equal(t, "LongContent", b.Choice.Strategy)

	out, ok = SetChoice("guidance: no choice here", "Basic")
	assert.False(t, ok)
	assert.Equal(t, "guidance: no choice here", out)
}

func TestSourceAcceptsDQL(t *testing.T) {
	var s Source
	require.NoError(t, json.Unmarshal([]byte(`{"strategy":"Basic","dql":"#daily"}`), &s))
	assert.Equal(t, Source{Strategy: "Basic", Query: "#daily"}, s)

	require.NoError(t, json.Unmarshal([]byte(`{"query":"#a","dql":"#b"}`), &s))
	assert.Equal(t, "#a", s.Query, "query takes precedence")

	b, err := json.Marshal(Source{Query: "#daily"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"#daily"}`, string(b))
}

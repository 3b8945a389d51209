package retrieve

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kittclouds/notesynth/internal/store"
	"github.com/kittclouds/notesynth/internal/vault"
	"github.com/kittclouds/notesynth/pkg/conversation"
	"github.com/kittclouds/notesynth/pkg/extract"
	"github.com/kittclouds/notesynth/pkg/markdown"
	"github.com/kittclouds/notesynth/pkg/query"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var vaultNotes = map[string]string{
	"journal/2024-01-01.md": "Reading [[Stoicism]] today. ^read\n\nUnrelated paragraph.\n",
	"journal/2024-01-02.md": "Walked. ![[Stoicism#^core]]\n\nThinking about [[Stoicism]] again. ^walk\n",
	"notes/Stoicism.md":     "The core idea of virtue. ^core\n",
	"sources/Daily.md": "---\nrole: source\nstrategy: SingleEvergreenReferrer\nevergreen: \"[[Stoicism]]\"\n---\n" +
		"How has my view changed?\n\n```query\nFROM \"journal\" SORT file.path ASC\n```\n",
	"aggregators/Weekly.md": "---\nrole: aggregator\nid: agg-weekly\nsources:\n" +
		"  - dql: 'FROM \"journal\" SORT file.path ASC'\n    strategy: LongContent\n---\nWhat went well this week?\n",
	"aggregators/Bare.md": "---\nrole: aggregator\n---\n",
}

type fixture struct {
	store  store.Storer
	vault  *store.VaultView
	engine *store.QueryEngine
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	fs, err := mem.NewFS()
	require.NoError(t, err)
	for name, content := range vaultNotes {
		require.NoError(t, hackpadfs.MkdirAll(fs, path.Dir(name), 0o755))
		require.NoError(t, hackpadfs.WriteFullFile(fs, name, []byte(content), 0o644))
	}
	st := store.NewMemStore()
	_, err = vault.NewIndexer(fs, st, nil, nil).Sync(context.Background())
	require.NoError(t, err)
	return fixture{store: st, vault: store.NewVaultView(st), engine: store.NewQueryEngine(st, nil)}
}

func (f fixture) retriever(opts ...Option) *Retriever {
	d := extract.NewDelegator(f.vault, extract.WithMarkerFunc(extract.SequentialMarkers(0)))
	return New(f.engine, f.vault, d, append([]Option{WithConcurrency(1)}, opts...)...)
}

type fakeEngine []string

func (e fakeEngine) Query(ctx context.Context, _ string) ([]query.Result, error) {
	out := make([]query.Result, len(e))
	for i, p := range e {
		out[i] = query.Result{Path: p}
	}
	return out, ctx.Err()
}

func paths(contents []extract.FileContents) []string {
	out := make([]string, len(contents))
	for i, c := range contents {
		out[i] = c.Path
	}
	return out
}

func TestRetrieveDedupesAndKeepsOrder(t *testing.T) {
	f := newFixture(t)
	engine := fakeEngine{"notes/Stoicism.md", "journal/2024-01-01.md", "notes/Stoicism.md", "journal/2024-01-02.md", "gone.md"}
	r := New(engine, f.vault, extract.NewDelegator(f.vault))

	got, err := r.Retrieve(context.Background(), Params{Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes/Stoicism.md", "journal/2024-01-01.md", "journal/2024-01-02.md"}, paths(got),
		"duplicates collapse, unresolved paths are dropped")
	for _, c := range got {
		assert.NotContains(t, c.Contents, "^", "no raw anchors in %s", c.Path)
		for _, s := range c.Substitutions {
			assert.Regexp(t, `^%[0-9a-f]{4}%$`, s.Template)
			assert.Equal(t, 1, strings.Count(c.Contents, s.Template))
		}
	}

	info, err := r.GetSourceInfo(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, []SourceInfo{
		{Path: "notes/Stoicism.md"}, {Path: "journal/2024-01-01.md"}, {Path: "journal/2024-01-02.md"}, {Path: "gone.md"},
	}, info, "source info lists paths without resolving them")
}

func TestRetrieveStrategies(t *testing.T) {
	f := newFixture(t)
	r := f.retriever()
	ctx := context.Background()

	got, err := r.Retrieve(ctx, Params{Query: `FROM "journal" SORT file.path ASC`, Strategy: extract.Basic})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Reading [[Stoicism]] today. %0000%\n\nUnrelated paragraph.", got[0].Contents)
	assert.Equal(t, "2024-01-01", got[0].File)
	assert.Equal(t, []extract.BlockRefSubstitution{{Template: "%0000%", BlockReference: "![[2024-01-01#^read]]"}}, got[0].Substitutions)

	// the embed is inlined before anchors are swapped
	assert.Equal(t, "Walked. The core idea of virtue. %0001%\n\nThinking about [[Stoicism]] again. %0002%", got[1].Contents)

	got, err = r.Retrieve(ctx, ParamsFromSource(conversation.Source{
		Query:     `FROM "journal" SORT file.path ASC`,
		Strategy:  "SingleEvergreenReferrer",
		Evergreen: "[[Stoicism]]",
	}))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Reading [[Stoicism]] today. %0003%", got[0].Contents)
	assert.Equal(t, "Thinking about [[Stoicism]] again. %0004%", got[1].Contents)
}

func TestRetrieveDefaultQuery(t *testing.T) {
	f := newFixture(t)
	r := f.retriever(WithDefaultQueries(map[string]string{
		"recentmentions": `FROM "notes"`,
		"NoSuchStrategy": `FROM "inbox"`,
	}))
	ctx := context.Background()

	q, ok := r.DefaultQuery(extract.RecentMentions)
	require.True(t, ok)
	assert.Equal(t, `FROM "notes"`, q)

	got, err := r.Retrieve(ctx, Params{Strategy: extract.RecentMentions})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes/Stoicism.md"}, paths(got))

	_, err = r.Retrieve(ctx, Params{Strategy: extract.LongContent})
	assert.ErrorIs(t, err, ErrNoQuery)
}

func TestRetrieveAll(t *testing.T) {
	f := newFixture(t)
	got, err := f.retriever().RetrieveAll(context.Background(), []conversation.Source{
		{Query: `FROM "notes"`},
		{Query: `FROM "journal" SORT file.path DESC`, Strategy: "LongContent"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes/Stoicism.md", "journal/2024-01-02.md", "journal/2024-01-01.md"}, paths(got))
}

func TestRetrieveErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.retriever().Retrieve(ctx, Params{Query: `FROM (`})
	assert.ErrorIs(t, err, query.ErrSyntax)

	boom := errors.New("boom")
	failing := extract.ExtractorFunc(func(ctx context.Context, file extract.File, _ *markdown.Metadata, _ extract.Strategy, _ string) ([]extract.FileContents, error) {
		if file.Path == "journal/2024-01-02.md" {
			return nil, boom
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := New(f.engine, f.vault, failing, WithConcurrency(4))
	_, err = r.Retrieve(ctx, Params{Query: `FROM "journal" OR "notes"`})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "journal/2024-01-02.md")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.retriever().Retrieve(cancelled, Params{Query: `FROM "journal"`})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetrieveConcurrentKeepsFileOrder(t *testing.T) {
	f := newFixture(t)
	var inflight, peak atomic.Int32
	slow := extract.ExtractorFunc(func(ctx context.Context, file extract.File, _ *markdown.Metadata, _ extract.Strategy, _ string) ([]extract.FileContents, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		return []extract.FileContents{{Path: file.Path}, {Path: file.Path + "#2"}}, nil
	})
	r := New(f.engine, f.vault, slow, WithConcurrency(2))

	got, err := r.Retrieve(context.Background(), Params{Query: `LIST SORT file.path ASC`})
	require.NoError(t, err)
	require.Len(t, got, 12)
	for i := 0; i < len(got); i += 2 {
		assert.Equal(t, got[i].Path+"#2", got[i+1].Path)
	}
	assert.Equal(t, "aggregators/Bare.md", got[0].Path)
	assert.Equal(t, "sources/Daily.md", got[10].Path)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestEvergreenTitle(t *testing.T) {
	for in, want := range map[string]string{
		"Stoicism":                 "Stoicism",
		"[[Stoicism]]":             "Stoicism",
		"![[Stoicism#^core]]":      "Stoicism",
		"[[people/Seneca|Seneca]]": "people/Seneca",
		"  [[Stoicism#Heading]]  ": "Stoicism",
		"":                         "",
	} {
		assert.Equal(t, want, EvergreenTitle(in), in)
	}
}

package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/notesynth/pkg/conversation"
	"github.com/kittclouds/notesynth/pkg/extract"
)

func TestLoadNode(t *testing.T) {
	f := newFixture(t)
	r := f.retriever()
	ctx := context.Background()

	t.Run("source note runs its query", func(t *testing.T) {
		node, err := r.LoadNode(ctx, "Daily")
		require.NoError(t, err)
		assert.Equal(t, "sources/Daily.md", node.Path)
		assert.Equal(t, RoleSource, node.Role)
		assert.Equal(t, "How has my view changed?", node.Guidance)
		require.Len(t, node.SourceMaterial, 2)
		assert.Equal(t, "journal/2024-01-01.md", node.SourceMaterial[0].Path)
		assert.Contains(t, node.SourceMaterial[1].Contents, "Thinking about [[Stoicism]] again.")
		assert.NotContains(t, node.SourceMaterial[1].Contents, "Walked.", "only windows around the evergreen")
	})

	t.Run("aggregator note is guidance", func(t *testing.T) {
		node, err := r.LoadNode(ctx, "aggregators/Weekly")
		require.NoError(t, err)
		assert.Equal(t, RoleAggregator, node.Role)
		assert.Equal(t, "What went well this week?", node.Guidance)
		assert.Empty(t, node.SourceMaterial)
	})

	t.Run("plain note is raw contents", func(t *testing.T) {
		node, err := r.LoadNode(ctx, "Stoicism")
		require.NoError(t, err)
		assert.Equal(t, "The core idea of virtue. ^core\n", node.Contents)
		assert.Empty(t, node.Role)
	})

	t.Run("missing note is an error naming it", func(t *testing.T) {
		_, err := r.LoadNode(ctx, "nowhere/Ghost")
		require.Error(t, err)
		assert.ErrorIs(t, err, extract.ErrNotFound)
		assert.Contains(t, err.Error(), "nowhere/Ghost")
	})
}

func TestLoadAggregator(t *testing.T) {
	f := newFixture(t)
	r := f.retriever()
	ctx := context.Background()

	agg, err := r.LoadAggregator(ctx, "Weekly")
	require.NoError(t, err)
	assert.Equal(t, conversation.Aggregator{
		ID:       "agg-weekly",
		Sources:  []conversation.Source{{Query: `FROM "journal" SORT file.path ASC`, Strategy: "LongContent"}},
		Guidance: "What went well this week?",
	}, agg)

	bare, err := r.LoadAggregator(ctx, "Bare")
	require.NoError(t, err)
	assert.Equal(t, "aggregators/Bare.md", bare.ID, "the path stands in for a missing id")
	assert.Empty(t, bare.Sources)

	_, err = r.LoadAggregator(ctx, "Nope")
	assert.ErrorIs(t, err, extract.ErrNotFound)
}

func TestAggregatorsDriveReconstruction(t *testing.T) {
	f := newFixture(t)
	r := f.retriever()
	ctx := context.Background()

	rec := conversation.NewReconstructor(conversation.WithAggregators(r.Aggregators(ctx)))
	turns := rec.Turns("```reason\naggregator: Weekly\n```\n```reason\naggregator: Nope\nguidance: hi\n```\n")
	require.Len(t, turns, 2)

	plan := turns[0].Metadata[0]
	assert.Equal(t, "agg-weekly", plan.ID)
	assert.Equal(t, "What went well this week?", plan.Prompt)

	// the aggregator's sources retrieve like any other
	material, err := r.RetrieveAll(ctx, plan.Sources)
	require.NoError(t, err)
	require.Len(t, material, 2)
	assert.Equal(t, "journal/2024-01-01.md", material[0].Path)

	assert.NotEqual(t, "agg-weekly", turns[1].Metadata[0].ID)
	assert.Equal(t, "hi", turns[1].Content)
}

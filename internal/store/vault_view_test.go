package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/notesynth/pkg/extract"
)

func TestVaultView(t *testing.T) {
	runTestsForAllStores(t, "VaultView", func(t *testing.T, store Storer) {
		seedVault(t, store)
		v := NewVaultView(store)
		ctx := context.Background()

		f, err := v.Resolve(ctx, "Stoicism", "journal/2024-01-01.md")
		require.NoError(t, err)
		assert.Equal(t, extract.File{
			Path:      "notes/Stoicism.md",
			Basename:  "Stoicism",
			Extension: "md",
			ModTime:   time.UnixMilli(50).UTC(),
		}, f)

		text, err := v.Read(ctx, f)
		require.NoError(t, err)
		assert.Contains(t, text, "The core idea.")

		meta, err := v.Metadata(ctx, f)
		require.NoError(t, err)
		assert.Contains(t, meta.Blocks, "core")

		back, err := v.Backlinks(ctx, f)
		require.NoError(t, err)
		assert.Equal(t, []string{"journal/2024-01-01.md", "journal/2024-01-02.md"}, back)

		_, err = v.Resolve(ctx, "Nowhere", "")
		assert.True(t, errors.Is(err, extract.ErrNotFound))

		_, err = v.Read(ctx, extract.File{Path: "gone.md"})
		assert.True(t, errors.Is(err, extract.ErrNotFound))
	})
}

func TestVaultViewDrivesExtraction(t *testing.T) {
	runTestsForAllStores(t, "VaultViewExtract", func(t *testing.T, store Storer) {
		seedVault(t, store)
		v := NewVaultView(store)
		d := extract.NewDelegator(v, extract.WithMarkerFunc(extract.SequentialMarkers(0)))
		ctx := context.Background()

		day, err := v.Resolve(ctx, "journal/2024-01-02", "")
		require.NoError(t, err)
		meta, err := v.Metadata(ctx, day)
		require.NoError(t, err)

		out, err := d.Extract(ctx, day, meta, extract.Basic, "")
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "Walked. The core idea. %0000% and [[people/Seneca|Seneca]]", out[0].Contents)
		assert.Equal(t, "![[2024-01-02#^core]]", out[0].Substitutions[0].BlockReference)

		stoicism, err := v.Resolve(ctx, "Stoicism", "")
		require.NoError(t, err)
		all, err := d.Extract(ctx, stoicism, nil, extract.AllEvergreenReferrers, "")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "2024-01-01", all[0].File)
		assert.Equal(t, "Reading [[Stoicism]] today. #daily", all[0].Contents)
	})
}

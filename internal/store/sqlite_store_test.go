package store

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/notesynth/pkg/query"
)

func TestSQLiteStorePersistsToFile(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "notes.db")

	s, err := NewSQLiteStoreWithDSN(dsn)
	require.NoError(t, err)
	seedVault(t, s)
	require.NoError(t, s.UpdateNote(NewNote("inbox/draft.md", "second", 900), "edit"))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStoreWithDSN(dsn)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.CountNotes()
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	n, err := reopened.GetNote("inbox/draft.md")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "second", n.Content)
	assert.Equal(t, 2, n.Version)

	back, err := reopened.Backlinks("notes/Stoicism.md")
	require.NoError(t, err)
	assert.Len(t, back, 2)
}

func TestSQLiteStoreMetadataRoundTrip(t *testing.T) {
	s, err := NewSQLiteStore()
	require.NoError(t, err)
	defer s.Close()

	n := NewNote("N.md", "body", 1)
	n.Metadata = `{"sections":[]}`
	require.NoError(t, s.CreateNote(n))

	got, err := s.GetNote("N.md")
	require.NoError(t, err)
	assert.Equal(t, `{"sections":[]}`, got.Metadata)
	assert.Nil(t, got.ValidTo)
}

func TestSQLCompilerUnresolvedLinkMatchesNothing(t *testing.T) {
	s, err := NewSQLiteStore()
	require.NoError(t, err)
	defer s.Close()

	q, err := query.Parse(`FROM [[Ghost]] OR NOT [[Ghost]]`)
	require.NoError(t, err)

	c := &sqlCompiler{s: s}
	where, err := c.compile(q.Source)
	require.NoError(t, err)
	assert.Equal(t, "(0 OR NOT (0))", where)
	assert.Empty(t, c.args)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\_b\%c\\d`, escapeLike(`a_b%c\d`))
	assert.Equal(t, "plain", escapeLike("plain"))
}

func TestSQLiteStoreLoadsVecExtension(t *testing.T) {
	s, err := NewSQLiteStore()
	require.NoError(t, err)
	defer s.Close()

	v, err := s.VecVersion()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(v, "v"), "unexpected version %q", v)
}

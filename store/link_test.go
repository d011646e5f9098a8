package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkCorpus_LinksClipStoresByReference(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	for _, clip := range []string{"clipA", "clipB"} {
		dir := filepath.Join(base, clip)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		writeClip(t, filepath.Join(dir, clip+Ext), clip, "03", 2)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(base, "no-store"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "no-store", "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "loose"+Ext), []byte("x"), 0o644))

	master := filepath.Join(base, "master"+Ext)
	n, err := LinkCorpus(base, master)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	m, err := Open(master, ReadOnly)
	require.NoError(t, err)
	defer m.Close()

	links, err := m.Links()
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "clipA", links[0].Name)
	assert.True(t, filepath.IsAbs(links[0].Target))

	groups, err := m.Groups("")
	require.NoError(t, err)
	assert.Empty(t, groups, "links copy no data")

	linked, err := m.Resolve("clipB")
	require.NoError(t, err)
	defer linked.Close()
	keys, err := linked.FrameKeys("03")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, keys)
	assert.Equal(t, ReadOnly, linked.Mode())
}

func TestLinkCorpus_MissingBaseDir(t *testing.T) {
	t.Parallel()
	_, err := LinkCorpus(filepath.Join(t.TempDir(), "nope"), filepath.Join(t.TempDir(), "m"+Ext))
	assert.Error(t, err)
}

func TestResolve_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	master := filepath.Join(dir, "m"+Ext)
	require.NoError(t, With(master, Create, func(s *Store) error {
		return s.Link("moved", filepath.Join(dir, "gone"+Ext))
	}))

	m, err := Open(master, ReadOnly)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Resolve("unknown")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = m.Resolve("moved")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLink_RejectsNestedNames(t *testing.T) {
	t.Parallel()
	s, err := Open(filepath.Join(t.TempDir(), "m"+Ext), Create)
	require.NoError(t, err)
	defer s.Close()
	assert.Error(t, s.Link("a/b", "x"))
	assert.Error(t, s.Link("", "x"))
}

package corpus

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/emocorpus/record"
	"github.com/maastricht-university/emocorpus/store"
)

// buildLinkedCorpus writes one clip store per name under base and links
// them into base/master.sqlite.
func buildLinkedCorpus(t *testing.T, clips map[string]int) (base, master string) {
	t.Helper()
	base = t.TempDir()
	for clip, frames := range clips {
		dir := filepath.Join(base, clip)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		err := store.With(filepath.Join(dir, clip+store.Ext), store.Create, func(s *store.Store) error {
			for i := 1; i <= frames; i++ {
				mel := record.NewMel(3, i%4)
				for j := range mel.Data {
					mel.Data[j] = float64(i*100 + j)
				}
				pts := []record.Point{{X: float64(i), Y: 1, Z: 2}}
				if err := s.Append(clip, "04", i, pts, mel, "a"); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)
	}
	master = filepath.Join(base, "master"+store.Ext)
	_, err := store.LinkCorpus(base, master)
	require.NoError(t, err)
	return base, master
}

// dump reads every dataset of a store keyed by path.
func dump(t *testing.T, path string) map[string]store.Dataset {
	t.Helper()
	s, err := store.Open(path, store.ReadOnly)
	require.NoError(t, err)
	defer s.Close()

	out := map[string]store.Dataset{}
	var walk func(p string)
	walk = func(p string) {
		entries, err := s.Children(p)
		require.NoError(t, err)
		for _, e := range entries {
			child := e.Name
			if p != "" {
				child = p + "/" + e.Name
			}
			if e.Group {
				walk(child)
				continue
			}
			d, err := s.Dataset(child)
			require.NoError(t, err)
			out[child] = d
		}
	}
	walk("")
	return out
}

func TestMaterialize_CopiesLinkedClips(t *testing.T) {
	t.Parallel()
	_, master := buildLinkedCorpus(t, map[string]int{"clipA": 3, "clipB": 11})
	out := filepath.Join(t.TempDir(), "corpus"+store.Ext)

	var seen []string
	sum, err := Materialize(context.Background(), master, out,
		WithProgress(func(clip string, err error) {
			assert.NoError(t, err)
			seen = append(seen, clip)
		}))
	require.NoError(t, err)
	assert.Equal(t, []string{"clipA", "clipB"}, sum.Clips)
	assert.Equal(t, []string{"clipA", "clipB"}, seen)
	assert.Equal(t, (3+11)*3, sum.Datasets)
	assert.Empty(t, sum.Skipped)

	data := dump(t, out)
	assert.Len(t, data, sum.Datasets)

	ph := data["clipB/04/10/phoneme"]
	assert.True(t, ph.IsScalar(), "scalar phoneme stays scalar")
	v, err := ph.Scalar()
	require.NoError(t, err)
	assert.Equal(t, int32(0), v)

	mel := data["clipB/04/10/mel"]
	assert.Equal(t, []int{3, 2}, mel.Shape)
	assert.Equal(t, 1000.0, mel.Floats[0])

	empty := data["clipA/04/3/mel"]
	assert.Equal(t, []int{3, 3}, empty.Shape)
	zero := data["clipB/04/4/mel"]
	assert.Equal(t, []int{3, 0}, zero.Shape)
}

func TestMaterialize_Idempotent(t *testing.T) {
	t.Parallel()
	_, master := buildLinkedCorpus(t, map[string]int{"c1": 4, "c2": 2})
	dir := t.TempDir()
	first := filepath.Join(dir, "first"+store.Ext)
	second := filepath.Join(dir, "second"+store.Ext)

	_, err := Materialize(context.Background(), master, first)
	require.NoError(t, err)
	_, err = Materialize(context.Background(), first, second)
	require.NoError(t, err)

	assert.Equal(t, dump(t, first), dump(t, second))
}

func TestMaterialize_SurvivesRelocation(t *testing.T) {
	t.Parallel()
	base, master := buildLinkedCorpus(t, map[string]int{"clip": 2})
	out := filepath.Join(t.TempDir(), "owned"+store.Ext)
	_, err := Materialize(context.Background(), master, out)
	require.NoError(t, err)

	require.NoError(t, os.Rename(filepath.Join(base, "clip"), filepath.Join(base, "moved")))
	assert.Len(t, dump(t, out), 6)
}

func TestMaterialize_SkipsBrokenLinks(t *testing.T) {
	t.Parallel()
	base, master := buildLinkedCorpus(t, map[string]int{"good": 2, "lost": 2})
	require.NoError(t, os.RemoveAll(filepath.Join(base, "lost")))

	out := filepath.Join(t.TempDir(), "c"+store.Ext)
	sum, err := Materialize(context.Background(), master, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, sum.Clips)
	require.Len(t, sum.Skipped, 1)
	assert.Equal(t, "lost", sum.Skipped[0].Clip)

	for path := range dump(t, out) {
		assert.NotContains(t, path, "lost")
	}
}

func TestMaterialize_FailsWhenNothingCopied(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	master := filepath.Join(dir, "m"+store.Ext)
	require.NoError(t, store.With(master, store.Create, func(s *store.Store) error {
		return s.Link("ghost", filepath.Join(dir, "ghost"+store.Ext))
	}))

	sum, err := Materialize(context.Background(), master, filepath.Join(dir, "out"+store.Ext))
	assert.ErrorIs(t, err, ErrNoClips)
	require.NotNil(t, sum)
	assert.Len(t, sum.Skipped, 1)

	emptyMaster := filepath.Join(dir, "empty"+store.Ext)
	require.NoError(t, store.With(emptyMaster, store.Create, func(*store.Store) error { return nil }))
	_, err = Materialize(context.Background(), emptyMaster, filepath.Join(dir, "out2"+store.Ext))
	assert.ErrorIs(t, err, ErrNoClips)
}

func TestMaterialize_HonoursCancellation(t *testing.T) {
	t.Parallel()
	_, master := buildLinkedCorpus(t, map[string]int{"a": 1, "b": 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Materialize(ctx, master, filepath.Join(t.TempDir(), "o"+store.Ext))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMaterialize_MissingMaster(t *testing.T) {
	t.Parallel()
	_, err := Materialize(context.Background(), filepath.Join(t.TempDir(), "nope"+store.Ext), filepath.Join(t.TempDir(), strconv.Itoa(1)+store.Ext))
	assert.Error(t, err)
}

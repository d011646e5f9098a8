package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/emocorpus/phoneme"
	"github.com/maastricht-university/emocorpus/record"
)

func testPoints(n int, base float64) []record.Point {
	pts := make([]record.Point, n)
	for i := range pts {
		pts[i] = record.Point{X: base + float64(i), Y: base - float64(i), Z: base * 0.5}
	}
	return pts
}

func testMel(bands, frames int, base float64) record.Mel {
	m := record.NewMel(bands, frames)
	for i := range m.Data {
		m.Data[i] = base + float64(i)
	}
	return m
}

func writeClip(t *testing.T, path, clip, emotion string, frames int) {
	t.Helper()
	err := With(path, Create, func(s *Store) error {
		for i := 1; i <= frames; i++ {
			label := "k"
			if i%3 == 0 {
				label = ""
			}
			if err := s.Append(clip, emotion, i, testPoints(4, float64(i)), testMel(2, i%3, float64(i)), label); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestAppendReadAll_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clip"+Ext)
	writeClip(t, path, "clip", "03", 3)

	data, err := ReadAll(path)
	require.NoError(t, err)
	assert.Equal(t, "03", data.Emotion)
	assert.Equal(t, []int{1, 2, 3}, data.Indices())

	f2 := data.Frames[2]
	assert.Equal(t, testPoints(4, 2), f2.Landmarks)
	assert.Equal(t, 2, f2.Mel.Bands)
	assert.Equal(t, 2, f2.Mel.Frames)
	assert.Equal(t, []float64{2, 3, 4, 5}, f2.Mel.Data)
	assert.Equal(t, phoneme.Default().Encode("k"), f2.Phoneme)

	f3 := data.Frames[3]
	assert.Equal(t, phoneme.Unknown, f3.Phoneme, "empty label stores the unknown code")
	assert.Equal(t, 0, f3.Mel.Frames, "zero-width mel survives the round trip")
	assert.Equal(t, 2, f3.Mel.Bands)
}

func TestFrameKeys_SortNumerically(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clip"+Ext)
	writeClip(t, path, "clip", "05", 12)

	s, err := Open(path, ReadOnly)
	require.NoError(t, err)
	defer s.Close()

	names, err := s.Groups("05")
	require.NoError(t, err)
	assert.Equal(t, "10", names[1], "child listing is lexical")

	keys, err := s.FrameKeys("05")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, keys)
}

func TestSortNumeric(t *testing.T) {
	t.Parallel()
	idx, invalid := SortNumeric([]string{"10", "2", "1", "x", "33", "3"})
	assert.Equal(t, []int{1, 2, 3, 10, 33}, idx)
	assert.Equal(t, []string{"x"}, invalid)
}

func TestAppend_LastWriteWins(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clip"+Ext)
	err := With(path, Create, func(s *Store) error {
		if err := s.Append("c", "01", 1, testPoints(2, 1), testMel(2, 2, 0), "a"); err != nil {
			return err
		}
		return s.Append("c", "01", 1, testPoints(3, 9), testMel(2, 1, 7), "s")
	})
	require.NoError(t, err)

	data, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, data.Frames, 1)
	assert.Equal(t, testPoints(3, 9), data.Frames[1].Landmarks)
	assert.Equal(t, 38, data.Frames[1].Phoneme)
	assert.Equal(t, 1, data.Frames[1].Mel.Frames)
}

func TestAppend_RejectsBadFrameIndex(t *testing.T) {
	t.Parallel()
	s, err := Open(filepath.Join(t.TempDir(), "x"+Ext), Create)
	require.NoError(t, err)
	defer s.Close()
	assert.Error(t, s.Append("c", "01", 0, nil, record.NewMel(1, 1), "a"))
}

func TestAppendRecord(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clip"+Ext)
	err := With(path, Create, func(s *Store) error {
		return s.AppendRecord(&record.Record{
			Clip:       "clip",
			Emotion:    "06",
			FrameIndex: 4,
			Landmarks:  testPoints(2, 1),
			Phoneme:    "s",
			Mel:        testMel(3, 1, 0),
		})
	})
	require.NoError(t, err)

	data, err := ReadAll(path)
	require.NoError(t, err)
	assert.Equal(t, "06", data.Emotion)
	assert.Equal(t, []int{4}, data.Indices())
	assert.Equal(t, 38, data.Frames[4].Phoneme)
	assert.Equal(t, testPoints(2, 1), data.Frames[4].Landmarks)
}

func TestAppendRecord_RejectsInvalid(t *testing.T) {
	t.Parallel()
	s, err := Open(filepath.Join(t.TempDir(), "x"+Ext), Create)
	require.NoError(t, err)
	defer s.Close()

	tests := []struct {
		name string
		rec  record.Record
	}{
		{"no emotion", record.Record{Clip: "c", FrameIndex: 1, Mel: record.NewMel(1, 1)}},
		{"zero frame", record.Record{Clip: "c", Emotion: "01", Mel: record.NewMel(1, 1)}},
		{"short mel data", record.Record{Clip: "c", Emotion: "01", FrameIndex: 1, Mel: record.Mel{Bands: 2, Frames: 2, Data: []float64{1}}}},
	}
	for _, tt := range tests {
		assert.Error(t, s.AppendRecord(&tt.rec), tt.name)
	}
	groups, err := s.Groups("")
	require.NoError(t, err)
	assert.Empty(t, groups, "rejected records write nothing")
}

func TestAppend_UsesInjectedCodec(t *testing.T) {
	t.Parallel()
	codec, err := phoneme.NewCodec([]string{"x", "y"})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "c"+Ext)
	require.NoError(t, With(path, Create, func(s *Store) error {
		return s.Append("c", "02", 1, nil, record.NewMel(1, 0), "y")
	}, WithCodec(codec)))

	data, err := ReadAll(path)
	require.NoError(t, err)
	assert.Equal(t, 1, data.Frames[1].Phoneme)
	assert.Empty(t, data.Frames[1].Landmarks)
}

func TestScalarAndArrayAreDistinct(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "d"+Ext)
	require.NoError(t, With(path, Create, func(s *Store) error {
		if err := s.WriteDataset("g/scalar", Int32Scalar(7)); err != nil {
			return err
		}
		return s.WriteDataset("g/array", Dataset{DType: Int32, Shape: []int{1}, Ints: []int32{7}})
	}))

	s, err := Open(path, ReadOnly)
	require.NoError(t, err)
	defer s.Close()

	sc, err := s.Dataset("g/scalar")
	require.NoError(t, err)
	assert.True(t, sc.IsScalar())
	v, err := sc.Scalar()
	require.NoError(t, err)
	assert.Equal(t, int32(7), v)

	arr, err := s.Dataset("g/array")
	require.NoError(t, err)
	assert.False(t, arr.IsScalar())
	_, err = arr.Scalar()
	assert.Error(t, err)
}

func TestDataset_NotFoundNamesMissingSegment(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clip"+Ext)
	writeClip(t, path, "clip", "03", 2)

	s, err := Open(path, ReadOnly)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Dataset("03/7/mel")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "7", nf.Segment)

	_, err = s.Dataset("03/1/extra")
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "extra", nf.Segment)

	_, err = s.Children("08")
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "08", nf.Segment)
}

func TestClosedStoreFails(t *testing.T) {
	t.Parallel()
	s, err := Open(filepath.Join(t.TempDir(), "c"+Ext), Create)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Append("c", "01", 1, nil, record.NewMel(1, 1), "a"), ErrClosed)
	_, err = s.Dataset("01/1/mel")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Children("")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Flush(), ErrClosed)
	assert.ErrorIs(t, s.Close(), ErrClosed)
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clip"+Ext)
	writeClip(t, path, "clip", "01", 1)

	s, err := Open(path, ReadOnly)
	require.NoError(t, err)
	defer s.Close()
	assert.ErrorIs(t, s.CreateGroup("02"), ErrReadOnly)
	assert.ErrorIs(t, s.Link("x", "y"), ErrReadOnly)
}

func TestOpen_ReadOnlyMissingOrMalformed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "missing"+Ext), ReadOnly)
	assert.ErrorIs(t, err, os.ErrNotExist)

	junk := filepath.Join(dir, "junk"+Ext)
	require.NoError(t, os.WriteFile(junk, []byte("definitely not sqlite, just some bytes padding it out"), 0o644))
	_, err = Open(junk, ReadOnly)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestCreateTruncatesExisting(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clip"+Ext)
	writeClip(t, path, "clip", "01", 3)
	writeClip(t, path, "clip", "02", 1)

	data, err := ReadAll(path)
	require.NoError(t, err)
	assert.Equal(t, "02", data.Emotion)
	assert.Len(t, data.Frames, 1)
}

func TestReadWriteKeepsExisting(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clip"+Ext)
	writeClip(t, path, "clip", "01", 2)
	require.NoError(t, With(path, ReadWrite, func(s *Store) error {
		return s.Append("clip", "01", 3, nil, record.NewMel(2, 1), "a")
	}))

	data, err := ReadAll(path)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, data.Indices())
}

func TestWith_ClosesOnError(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clip"+Ext)
	var held *Store
	sentinel := errors.New("boom")
	err := With(path, Create, func(s *Store) error {
		held = s
		if err := s.Append("c", "04", 1, nil, record.NewMel(1, 1), "a"); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.ErrorIs(t, held.Close(), ErrClosed)

	data, err := ReadAll(path)
	require.NoError(t, err, "writes before the failure are flushed")
	assert.Len(t, data.Frames, 1)
}

func TestWith_ClosesOnPanic(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clip"+Ext)
	var held *Store
	assert.Panics(t, func() {
		_ = With(path, Create, func(s *Store) error {
			held = s
			panic("boom")
		})
	})
	assert.ErrorIs(t, held.Close(), ErrClosed)
}

func TestReadAll_EmptyStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "empty"+Ext)
	require.NoError(t, With(path, Create, func(*Store) error { return nil }))
	_, err := ReadAll(path)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteDataset_GroupConflicts(t *testing.T) {
	t.Parallel()
	s, err := Open(filepath.Join(t.TempDir(), "c"+Ext), Create)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteDataset("a/b", Int32Scalar(1)))
	assert.Error(t, s.CreateGroup("a/b/c"), "cannot nest under a dataset")
	assert.Error(t, s.WriteDataset("a", Int32Scalar(2)), "cannot overwrite a group")

	ok, err := s.IsGroup("a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Exists("a/b")
	require.NoError(t, err)
	assert.True(t, ok)
}

package media

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// fakeJPEG returns an SOI..EOI image whose body holds b.
func fakeJPEG(b ...byte) []byte {
	out := []byte{0xFF, 0xD8}
	out = append(out, b...)
	return append(out, 0xFF, 0xD9)
}

func TestFrameCursor_SplitsStream(t *testing.T) {
	t.Parallel()

	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x01}) // leading junk
	for i := 0; i < 4; i++ {
		stream.Write(fakeJPEG(byte(i), 0xFF, 0x00, 0xAB))
	}

	cur := NewFrameCursor(&stream, 30)
	var got []Frame
	for cur.Next() {
		got = append(got, cur.Frame())
	}
	require.NoError(t, cur.Err())
	assert.True(t, cur.Exhausted())
	require.Len(t, got, 4)

	wantTs := []int{0, 33, 66, 100}
	for i, f := range got {
		assert.Equal(t, i+1, f.Index)
		assert.Equal(t, wantTs[i], f.TimestampMs)
		assert.Equal(t, fakeJPEG(byte(i), 0xFF, 0x00, 0xAB), f.JPEG)
	}
	assert.False(t, cur.Next(), "stays exhausted")
	assert.NoError(t, cur.Close())
}

// chunkReader returns at most n bytes per Read.
type chunkReader struct {
	r io.Reader
	n int
}

func (c chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}

func TestFrameCursor_MarkersAcrossReads(t *testing.T) {
	t.Parallel()

	var stream bytes.Buffer
	for i := 0; i < 3; i++ {
		stream.Write(fakeJPEG(bytes.Repeat([]byte{byte(i + 1)}, 7)...))
	}
	cur := NewFrameCursor(chunkReader{r: &stream, n: 3}, 25)
	n := 0
	for cur.Next() {
		n++
		assert.Len(t, cur.Frame().JPEG, 11)
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, 3, n)
	assert.Equal(t, 40.0, cur.FrameDurationMs())
}

func TestFrameCursor_Truncated(t *testing.T) {
	t.Parallel()

	stream := append(fakeJPEG(1, 2), 0xFF, 0xD8, 3, 4)
	cur := NewFrameCursor(bytes.NewReader(stream), 30)
	require.True(t, cur.Next())
	assert.False(t, cur.Next())
	assert.ErrorContains(t, cur.Err(), "truncated")
}

func TestFrameCursor_CloseEarly(t *testing.T) {
	t.Parallel()

	r, w := io.Pipe()
	go func() {
		w.Write(fakeJPEG(9))
		w.Write([]byte{0xFF, 0xD8}) // never finished
	}()
	cur := NewFrameCursor(r, 30)
	require.True(t, cur.Next())
	require.NoError(t, cur.Close())
	assert.True(t, cur.Exhausted())
	assert.False(t, cur.Next())
}

func TestParseRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float64
		err  bool
	}{
		{"30/1\n", 30, false},
		{"30000/1001", 30000.0 / 1001, false},
		{"25", 25, false},
		{"0/0", 0, true},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseRate(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9)
	}
}

func TestTools_MissingBinary(t *testing.T) {
	t.Parallel()
	tools := Tools{FFmpeg: "/nonexistent/ffmpeg", FFprobe: "/nonexistent/ffprobe"}
	_, err := tools.Probe(context.Background(), "clip.mp4")
	assert.Error(t, err)
	assert.Error(t, tools.ExtractWAV(context.Background(), "clip.mp4", filepath.Join(t.TempDir(), "a.wav"), 16000))
	_, err = tools.OpenFrames(context.Background(), "clip.mp4")
	assert.Error(t, err)
}

func sine(freq float64, sr, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sr))
	}
	return out
}

func TestWAV_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tone.wav")
	in := sine(440, 16000, 1600)
	require.NoError(t, WriteWAV(path, in, 16000))

	out, sr, err := LoadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, sr)
	require.Len(t, out, len(in))
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1.0/math.MaxInt16)
	}
}

func TestLoadWAV_Invalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not RIFF"), 0o644))
	_, _, err := LoadWAV(path)
	assert.Error(t, err)

	_, _, err = LoadWAV(filepath.Join(t.TempDir(), "missing.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMelSpectrogram_Shape(t *testing.T) {
	t.Parallel()

	cfg := MelConfig{SampleRate: 16000, NFFT: 512, HopLength: 128, NMels: 40, TopDB: 80}
	mel, err := MelSpectrogram(sine(1000, 16000, 16000), cfg)
	require.NoError(t, err)
	assert.Equal(t, 40, mel.Bands)
	assert.Equal(t, 1+16000/128, mel.Frames)
	require.NoError(t, mel.Validate())

	peak := floats.Max(mel.Data)
	for _, v := range mel.Data {
		assert.GreaterOrEqual(t, v, peak-80-1e-9)
	}

	// The loudest band of a middle frame contains the tone.
	mid := mel.Frames / 2
	best := 0
	for b := 1; b < mel.Bands; b++ {
		if mel.At(b, mid) > mel.At(best, mid) {
			best = b
		}
	}
	lo := melToHz(hzToMel(0) + float64(best)*(hzToMel(8000)-hzToMel(0))/41)
	hi := melToHz(hzToMel(0) + float64(best+2)*(hzToMel(8000)-hzToMel(0))/41)
	assert.True(t, lo <= 1000 && 1000 <= hi, "band %d spans [%v, %v]", best, lo, hi)
}

func TestMelSpectrogram_ShortAndSilent(t *testing.T) {
	t.Parallel()

	cfg := DefaultMelConfig()
	mel, err := MelSpectrogram(make([]float64, 10), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, mel.Frames)
	for _, v := range mel.Data {
		assert.InDelta(t, -100, v, 1e-9, "silence sits at the amin floor")
	}

	_, err = MelSpectrogram(nil, cfg)
	assert.Error(t, err)

	bad := cfg
	bad.NFFT = 0
	_, err = MelSpectrogram([]float64{1}, bad)
	assert.Error(t, err)
}

func TestMelFilterbank(t *testing.T) {
	t.Parallel()

	bank := melFilterbank(DefaultMelConfig())
	require.Len(t, bank, 128)
	for b, row := range bank {
		require.Len(t, row, 1025)
		assert.GreaterOrEqual(t, floats.Min(row), 0.0, "band %d", b)
	}
	// Upper bands are wide enough to cover FFT bins.
	assert.Greater(t, floats.Sum(bank[127]), 0.0)
}

func TestMelScale(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 15, hzToMel(1000), 1e-9)
	for _, hz := range []float64{0, 200, 999, 1000, 4000, 22050} {
		assert.InDelta(t, hz, melToHz(hzToMel(hz)), 1e-6)
	}
}

func TestReflect(t *testing.T) {
	t.Parallel()
	// numpy.pad([0,1,2,3], 3, mode="reflect") -> [3 2 1 0 1 2 3 2 1 0]
	got := make([]int, 0, 10)
	for i := -3; i < 7; i++ {
		got = append(got, reflect(i, 4))
	}
	assert.Equal(t, []int{3, 2, 1, 0, 1, 2, 3, 2, 1, 0}, got)
	assert.Equal(t, 0, reflect(-5, 1))
}

func TestHann(t *testing.T) {
	t.Parallel()
	w := hann(4)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1, 0.5}, w, 1e-12)
}

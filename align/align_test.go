package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/emocorpus/record"
)

func newAligner(t *testing.T, frames int, sr, hop int, phones []Interval) *Aligner {
	t.Helper()
	mel := record.NewMel(4, frames)
	for i := range mel.Data {
		mel.Data[i] = float64(i % frames)
	}
	a, err := New(mel, sr, hop, phones)
	require.NoError(t, err)
	return a
}

func TestMelRange_Formula(t *testing.T) {
	t.Parallel()
	a := newAligner(t, 1000, 44100, 512, nil)

	start, end := a.MelRange(0, 1000.0/30)
	assert.Equal(t, 0, start)
	assert.Equal(t, 2, end) // floor(0.0333*44100/512) = floor(2.87)

	start, end = a.MelRange(100, 1000.0/30)
	assert.Equal(t, 8, start)  // floor(0.1*44100/512) = floor(8.61)
	assert.Equal(t, 11, end)   // floor(0.1333*44100/512) = floor(11.48)
}

func TestMelRange_OrderedAndNonOverlapping(t *testing.T) {
	t.Parallel()
	for _, fps := range []float64{24, 25, 29.97, 30, 60, 240} {
		a := newAligner(t, 400, 44100, 512, nil)
		dur := 1000 / fps
		prevEnd := 0
		for i := 0; i < 120; i++ {
			ts := float64(i) * dur
			start, end := a.MelRange(ts, dur)
			assert.LessOrEqual(t, start, end, "fps %v frame %d", fps, i)
			assert.GreaterOrEqual(t, start, prevEnd, "fps %v frame %d overlaps previous", fps, i)
			prevEnd = end
		}
	}
}

func TestMelSegment_ZeroWidthWhenShorterThanHop(t *testing.T) {
	t.Parallel()
	a := newAligner(t, 100, 16000, 512, nil)

	// One hop is 32 ms; a 5 ms frame inside a hop covers no column boundary.
	seg := a.MelSegment(1, 5)
	assert.Equal(t, 4, seg.Bands)
	assert.Equal(t, 0, seg.Frames)
	assert.Empty(t, seg.Data)
}

func TestMelSegment_ClampsToSpectrogram(t *testing.T) {
	t.Parallel()
	a := newAligner(t, 10, 44100, 512, nil)

	seg := a.MelSegment(100, 1000) // columns 8..94, only 8..10 exist
	assert.Equal(t, 2, seg.Frames)
	assert.Equal(t, 8.0, seg.At(0, 0))

	seg = a.MelSegment(5000, 33)
	assert.Equal(t, 0, seg.Frames)
}

func TestPhonemeAt_Scenario(t *testing.T) {
	t.Parallel()
	a := newAligner(t, 20, 44100, 512, []Interval{
		{Start: 0, End: 0.05, Label: "k"},
		{Start: 0.05, End: 0.12, Label: "s"},
	})

	got, ok := a.PhonemeAt(0)
	assert.True(t, ok)
	assert.Equal(t, "k", got)

	got, ok = a.PhonemeAt(33)
	assert.True(t, ok)
	assert.Equal(t, "k", got)

	got, ok = a.PhonemeAt(66)
	assert.True(t, ok)
	assert.Equal(t, "s", got)

	_, ok = a.PhonemeAt(120)
	assert.False(t, ok, "end bound is exclusive")

	_, ok = a.PhonemeAt(500)
	assert.False(t, ok)
}

func TestPhonemeAt_GapIsUnknown(t *testing.T) {
	t.Parallel()
	a := newAligner(t, 20, 44100, 512, []Interval{
		{Start: 0, End: 0.05, Label: "k"},
		{Start: 0.07, End: 0.12, Label: "s"},
	})
	_, ok := a.PhonemeAt(66)
	assert.False(t, ok)

	mel, label := a.Frame(66, 33)
	assert.Equal(t, "", label)
	assert.Equal(t, 4, mel.Bands)
}

func TestPhonemeAt_FirstChronologicalMatchWins(t *testing.T) {
	t.Parallel()
	a := newAligner(t, 20, 44100, 512, []Interval{
		{Start: 0.10, End: 0.30, Label: "late"},
		{Start: 0.00, End: 0.20, Label: "early"},
		{Start: 0.00, End: 0.25, Label: "early-second"},
	})
	got, ok := a.PhonemeAt(150)
	assert.True(t, ok)
	assert.Equal(t, "early", got)
}

func TestNew_RejectsBadParameters(t *testing.T) {
	t.Parallel()
	_, err := New(record.NewMel(2, 2), 0, 512, nil)
	assert.Error(t, err)
	_, err = New(record.NewMel(2, 2), 44100, -1, nil)
	assert.Error(t, err)
	_, err = New(record.Mel{Bands: 2, Frames: 2}, 44100, 512, nil)
	assert.Error(t, err)
}

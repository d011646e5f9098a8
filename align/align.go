// Package align synchronizes one video frame with the audio mel columns and
// the forced-alignment phoneme interval that co-occur with it.
package align

import (
	"fmt"
	"math"
	"sort"

	"github.com/maastricht-university/emocorpus/record"
)

// Interval is one phoneme annotation, in seconds.
type Interval struct {
	Start float64
	End   float64
	Label string
}

// Aligner maps frame time windows onto a clip's full mel spectrogram and its
// phoneme intervals.
type Aligner struct {
	mel        record.Mel
	sampleRate int
	hopLength  int
	phones     []Interval
}

// New returns an Aligner for one clip. Intervals are ordered by start time;
// intervals sharing a start keep their input order.
func New(mel record.Mel, sampleRate, hopLength int, phones []Interval) (*Aligner, error) {
	if sampleRate <= 0 || hopLength <= 0 {
		return nil, fmt.Errorf("align: sample rate %d and hop length %d must be positive", sampleRate, hopLength)
	}
	if err := mel.Validate(); err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}
	sorted := make([]Interval, len(phones))
	copy(sorted, phones)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	return &Aligner{mel: mel, sampleRate: sampleRate, hopLength: hopLength, phones: sorted}, nil
}

// column converts seconds to a mel column index.
func (a *Aligner) column(sec float64) int {
	return int(math.Floor(sec * float64(a.sampleRate) / float64(a.hopLength)))
}

// MelRange returns the half-open column range covering
// [timestampMs, timestampMs+durationMs). The range is clamped to the
// spectrogram and is empty when the frame is shorter than one hop.
func (a *Aligner) MelRange(timestampMs, durationMs float64) (start, end int) {
	start = a.column(timestampMs / 1000)
	end = a.column((timestampMs + durationMs) / 1000)
	start = max(0, min(start, a.mel.Frames))
	end = max(start, min(end, a.mel.Frames))
	return start, end
}

// MelSegment returns an owned copy of the columns in MelRange.
func (a *Aligner) MelSegment(timestampMs, durationMs float64) record.Mel {
	start, end := a.MelRange(timestampMs, durationMs)
	return a.mel.Columns(start, end)
}

// PhonemeAt returns the label of the first interval, in chronological order,
// whose millisecond span [start, end) contains timestampMs. The second
// result is false when no interval covers the timestamp.
func (a *Aligner) PhonemeAt(timestampMs int) (string, bool) {
	for _, p := range a.phones {
		startMs := int(p.Start * 1000)
		endMs := int(p.End * 1000)
		if timestampMs >= startMs && timestampMs < endMs {
			return p.Label, true
		}
	}
	return "", false
}

// Frame resolves both modalities for one frame. An uncovered timestamp
// yields the empty label, which encodes to the unknown code.
func (a *Aligner) Frame(timestampMs int, durationMs float64) (record.Mel, string) {
	label, _ := a.PhonemeAt(timestampMs)
	return a.MelSegment(float64(timestampMs), durationMs), label
}

// Columns is the width of the full spectrogram.
func (a *Aligner) Columns() int { return a.mel.Frames }

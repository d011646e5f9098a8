// Package record defines the per-frame unit that binds one video frame's
// landmarks to the audio slice and phoneme label co-occurring with it.
package record

import (
	"errors"
	"fmt"
)

// Point is one 3-D facial landmark.
type Point struct {
	X, Y, Z float64
}

// Mel is a row-major band × time matrix. A zero-width Mel (Frames == 0) is
// valid; it is what alignment produces for frames shorter than one hop.
type Mel struct {
	Bands  int
	Frames int
	Data   []float64
}

// NewMel allocates a zeroed bands × frames matrix.
func NewMel(bands, frames int) Mel {
	return Mel{Bands: bands, Frames: frames, Data: make([]float64, bands*frames)}
}

// At returns the value at band b, column t.
func (m Mel) At(b, t int) float64 { return m.Data[b*m.Frames+t] }

// Set stores v at band b, column t.
func (m Mel) Set(b, t int, v float64) { m.Data[b*m.Frames+t] = v }

// Columns returns an owned copy of columns [start, end). Bounds are clamped
// to the matrix; an empty range yields a zero-width Mel with the same bands.
func (m Mel) Columns(start, end int) Mel {
	start = max(0, min(start, m.Frames))
	end = max(start, min(end, m.Frames))
	out := NewMel(m.Bands, end-start)
	for b := 0; b < m.Bands; b++ {
		copy(out.Data[b*out.Frames:(b+1)*out.Frames], m.Data[b*m.Frames+start:b*m.Frames+end])
	}
	return out
}

// Validate reports whether the matrix dimensions agree with its data.
func (m Mel) Validate() error {
	if m.Bands < 0 || m.Frames < 0 {
		return fmt.Errorf("mel: negative shape (%d, %d)", m.Bands, m.Frames)
	}
	if len(m.Data) != m.Bands*m.Frames {
		return fmt.Errorf("mel: shape (%d, %d) does not match %d values", m.Bands, m.Frames, len(m.Data))
	}
	return nil
}

// Record is one frame's training sample. It lives for one ingestion pass:
// created during alignment, consumed by the store, then discarded.
type Record struct {
	Clip       string
	Emotion    string
	FrameIndex int
	Landmarks  []Point
	Phoneme    string
	Mel        Mel
}

// Validate checks the invariants the store relies on.
func (r *Record) Validate() error {
	if r.Emotion == "" {
		return errors.New("record: empty emotion label")
	}
	if r.FrameIndex < 1 {
		return fmt.Errorf("record: frame index %d, want >= 1", r.FrameIndex)
	}
	return r.Mel.Validate()
}

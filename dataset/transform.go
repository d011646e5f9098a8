package dataset

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/maastricht-university/emocorpus/record"
)

// PadMel returns m with exactly width columns: zero-filled on the right when
// short, trailing columns dropped when long. Zero-width input is valid.
func PadMel(m record.Mel, width int) record.Mel {
	out := record.NewMel(m.Bands, width)
	n := min(m.Frames, width)
	for b := 0; b < m.Bands; b++ {
		copy(out.Data[b*width:b*width+n], m.Data[b*m.Frames:b*m.Frames+n])
	}
	return out
}

// Normalize returns the z-score of x using whole-array population
// statistics. A constant array, including an all-zero one, maps to zeros.
func Normalize(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 || floats.Max(x) == floats.Min(x) {
		return out
	}
	mean, variance := stat.PopMeanVariance(x, nil)
	std := math.Sqrt(variance)
	if std == 0 {
		return out
	}
	for i, v := range x {
		out[i] = (v - mean) / std
	}
	return out
}

// PadSequence stacks frames of frameSize values into exactly length frames.
// Frames past length are dropped; missing frames are zero.
func PadSequence[T float32 | int32](frames [][]T, length, frameSize int) []T {
	out := make([]T, length*frameSize)
	for i, f := range frames {
		if i == length {
			break
		}
		copy(out[i*frameSize:(i+1)*frameSize], f)
	}
	return out
}

// OneHot encodes label as a vector of width n.
func OneHot(label, n int) []float32 {
	out := make([]float32, n)
	if label >= 0 && label < n {
		out[label] = 1
	}
	return out
}

// landmarkFrame flattens pts to count*3 values. Missing points (including
// frames where detection failed) are zero; extra points are dropped.
func landmarkFrame(pts []record.Point, count int) []float32 {
	out := make([]float32, count*3)
	for i, p := range pts {
		if i == count {
			break
		}
		out[3*i] = float32(p.X)
		out[3*i+1] = float32(p.Y)
		out[3*i+2] = float32(p.Z)
	}
	return out
}

// melFrame pads, normalizes and converts one mel to a (bands, width, 1)
// tensor; the trailing channel axis does not change the flat layout.
func melFrame(m record.Mel, width int) []float32 {
	norm := Normalize(PadMel(m, width).Data)
	out := make([]float32, len(norm))
	for i, v := range norm {
		out[i] = float32(v)
	}
	return out
}

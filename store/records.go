package store

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/emocorpus/record"
)

// Dataset names inside a frame group.
const (
	LandmarksKey = "landmarks"
	MelKey       = "mel"
	PhonemeKey   = "phoneme"
)

// FrameData is one frame read back from a store.
type FrameData struct {
	Landmarks []record.Point
	Mel       record.Mel
	Phoneme   int
}

// ClipData is the content of a single-clip store.
type ClipData struct {
	Emotion string
	Frames  map[int]FrameData
}

// Indices returns the frame indices in ascending numeric order.
func (c *ClipData) Indices() []int {
	idx := make([]int, 0, len(c.Frames))
	for i := range c.Frames {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Append writes one frame under emotion/frameIndex. Groups are created if
// absent; re-appending a frame replaces its datasets. The phoneme label is
// encoded with the store's codec, so unknown labels store as -1. clip only
// labels log output: a clip-level store holds a single clip.
func (s *Store) Append(clip, emotion string, frameIndex int, landmarks []record.Point, mel record.Mel, phonemeLabel string) error {
	if frameIndex < 1 {
		return fmt.Errorf("store: append %s/%s: frame index %d, want >= 1", clip, emotion, frameIndex)
	}
	if err := mel.Validate(); err != nil {
		return fmt.Errorf("store: append %s/%s/%d: %w", clip, emotion, frameIndex, err)
	}

	q, release, err := s.writer()
	if err != nil {
		return err
	}
	defer release()

	group := Join(emotion, strconv.Itoa(frameIndex))
	if err := s.createGroup(q, group); err != nil {
		return err
	}

	flat := make([]float64, 0, 3*len(landmarks))
	for _, p := range landmarks {
		flat = append(flat, p.X, p.Y, p.Z)
	}
	code := s.opts.codec.Encode(phonemeLabel)

	datasets := []struct {
		name string
		d    Dataset
	}{
		{LandmarksKey, FloatArray([]int{len(landmarks), 3}, flat)},
		{MelKey, FloatArray([]int{mel.Bands, mel.Frames}, mel.Data)},
		{PhonemeKey, Int32Scalar(int32(code))},
	}
	for _, ds := range datasets {
		if err := s.putDataset(q, Join(group, ds.name), ds.d); err != nil {
			return err
		}
	}

	s.log.WithFields(logrus.Fields{
		"clip":    clip,
		"emotion": emotion,
		"frame":   frameIndex,
		"phoneme": code,
	}).Debug("frame appended")
	return nil
}

// AppendRecord appends r after validating it.
func (s *Store) AppendRecord(r *record.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.Append(r.Clip, r.Emotion, r.FrameIndex, r.Landmarks, r.Mel, r.Phoneme)
}

// FrameKeys returns the frame indices under group in numeric order. Child
// names that are not integers are logged and ignored.
func (s *Store) FrameKeys(group string) ([]int, error) {
	names, err := s.Groups(group)
	if err != nil {
		return nil, err
	}
	idx, invalid := SortNumeric(names)
	if len(invalid) > 0 {
		s.log.WithFields(logrus.Fields{"group": group, "keys": invalid}).Warn("ignoring non-numeric frame keys")
	}
	return idx, nil
}

// ReadFrame reads the three datasets of the frame group at path.
func (s *Store) ReadFrame(path string) (FrameData, error) {
	var fd FrameData

	lm, err := s.Dataset(Join(path, LandmarksKey))
	if err != nil {
		return fd, err
	}
	if fd.Landmarks, err = PointsFrom(lm); err != nil {
		return fd, fmt.Errorf("store: %s: %w", path, err)
	}

	mel, err := s.Dataset(Join(path, MelKey))
	if err != nil {
		return fd, err
	}
	if fd.Mel, err = MelFrom(mel); err != nil {
		return fd, fmt.Errorf("store: %s: %w", path, err)
	}

	ph, err := s.Dataset(Join(path, PhonemeKey))
	if err != nil {
		return fd, err
	}
	code, err := ph.Scalar()
	if err != nil {
		return fd, fmt.Errorf("store: %s: %w", path, err)
	}
	fd.Phoneme = int(code)
	return fd, nil
}

// PointsFrom converts an (n, 3) float64 dataset to landmark points.
func PointsFrom(d Dataset) ([]record.Point, error) {
	if d.DType != Float64 || len(d.Shape) != 2 || d.Shape[1] != 3 {
		return nil, fmt.Errorf("landmarks: want float64 (n, 3), have %s%v: %w", d.DType, d.Shape, ErrFormat)
	}
	pts := make([]record.Point, d.Shape[0])
	for i := range pts {
		pts[i] = record.Point{X: d.Floats[3*i], Y: d.Floats[3*i+1], Z: d.Floats[3*i+2]}
	}
	return pts, nil
}

// MelFrom converts a (bands, width) float64 dataset to a Mel.
func MelFrom(d Dataset) (record.Mel, error) {
	if d.DType != Float64 || len(d.Shape) != 2 {
		return record.Mel{}, fmt.Errorf("mel: want float64 (bands, width), have %s%v: %w", d.DType, d.Shape, ErrFormat)
	}
	return record.Mel{Bands: d.Shape[0], Frames: d.Shape[1], Data: d.Floats}, nil
}

// ReadAll reads a single-clip store: its emotion group and every frame in
// it, keyed by numeric frame index. A store holding several emotion groups
// yields the first in key order.
func ReadAll(path string, opts ...Option) (*ClipData, error) {
	var out *ClipData
	err := With(path, ReadOnly, func(s *Store) error {
		emotions, err := s.Groups("")
		if err != nil {
			return err
		}
		if len(emotions) == 0 {
			return &NotFoundError{Path: path, Segment: "emotion"}
		}
		if len(emotions) > 1 {
			s.log.WithField("emotions", emotions).Warn("store holds several emotion groups, reading the first")
		}
		emotion := emotions[0]

		indices, err := s.FrameKeys(emotion)
		if err != nil {
			return err
		}
		out = &ClipData{Emotion: emotion, Frames: make(map[int]FrameData, len(indices))}
		for _, i := range indices {
			fd, err := s.ReadFrame(Join(emotion, strconv.Itoa(i)))
			if err != nil {
				return err
			}
			out.Frames[i] = fd
		}
		return nil
	}, opts...)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("store: read all %q: %w", path, err)
	}
	return out, nil
}

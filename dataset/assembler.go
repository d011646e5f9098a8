// Package dataset reads a materialized corpus back into fixed-shape,
// normalized training tensors and serves them as shuffled batches.
//
// Stored frames keep their raw alignment results; every shape decision
// (mel width, sequence length, landmark count) is made here, at read time.
package dataset

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/emocorpus/phoneme"
	"github.com/maastricht-university/emocorpus/store"
)

var (
	// ErrUnmaterialized is returned by [Assembler.Load] for a corpus that
	// holds links but no owned clips.
	ErrUnmaterialized = errors.New("corpus holds only links; materialize it first")

	// ErrNoFrames is returned by [Assembler.Fetch] when a group has no
	// usable frames.
	ErrNoFrames = errors.New("no usable frames")
)

// Meta identifies one training example: a (clip, emotion) group.
type Meta struct {
	Clip    string
	Emotion string
}

func (m Meta) String() string { return m.Clip + "/" + m.Emotion }

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape []int
	Data  []float32
}

// IntTensor is a dense int32 array in row-major order.
type IntTensor struct {
	Shape []int
	Data  []int32
}

// Example is one assembled (clip, emotion) sequence.
type Example struct {
	Meta Meta

	// Landmarks has shape (L, landmark_count, 3).
	Landmarks Tensor

	// Mel has shape (L, mel_bands, fixed_mel_width, 1).
	Mel Tensor

	// Phonemes has shape (L, 1).
	Phonemes IntTensor

	// Label is the zero-based emotion class.
	Label int

	// Frames is the number of real frames before padding.
	Frames int
}

type options struct {
	log   logrus.FieldLogger
	store []store.Option
}

// Option configures an [Assembler].
type Option func(*options)

// WithLogger sets the logger. Default: logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option { return func(o *options) { o.log = l } }

// WithStoreOptions passes options to the corpus store.
func WithStoreOptions(opts ...store.Option) Option {
	return func(o *options) { o.store = append(o.store, opts...) }
}

// Assembler reads examples from a materialized corpus. Fetch may be called
// concurrently; the corpus is opened read-only and must not be written while
// an Assembler is open.
type Assembler struct {
	path string
	cfg  Config
	log  logrus.FieldLogger
	st   *store.Store

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Open prepares an Assembler over the corpus at path. Zero Config fields take
// their defaults.
func Open(path string, cfg Config, opts ...Option) (*Assembler, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	st, err := store.Open(path, store.ReadOnly, append([]store.Option{store.WithLogger(o.log)}, o.store...)...)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	return &Assembler{
		path: path,
		cfg:  cfg,
		log:  o.log.WithField("corpus", path),
		st:   st,
		rng:  NewRand(cfg.Seed),
	}, nil
}

// NewRand returns the shuffling source for seed. Zero picks a random seed.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Close releases the corpus.
func (a *Assembler) Close() error { return a.st.Close() }

// Config returns the effective configuration.
func (a *Assembler) Config() Config { return a.cfg }

// Load lists one Meta per (clip, emotion) group, sorted by clip then emotion.
func (a *Assembler) Load() ([]Meta, error) {
	clips, err := a.st.Groups("")
	if err != nil {
		return nil, fmt.Errorf("dataset: load: %w", err)
	}
	if len(clips) == 0 {
		links, err := a.st.Links()
		if err != nil {
			return nil, fmt.Errorf("dataset: load: %w", err)
		}
		if len(links) > 0 {
			return nil, fmt.Errorf("dataset: load %q: %w", a.path, ErrUnmaterialized)
		}
		return nil, nil
	}

	var out []Meta
	for _, clip := range clips {
		emotions, err := a.st.Groups(clip)
		if err != nil {
			a.log.WithError(err).WithField("clip", clip).Warn("skipping unreadable clip")
			continue
		}
		for _, e := range emotions {
			out = append(out, Meta{Clip: clip, Emotion: e})
		}
	}
	return out, nil
}

// LabelIndex converts an emotion key such as "05" to its zero-based class.
func (a *Assembler) LabelIndex(emotion string) (int, error) {
	n, err := strconv.Atoi(emotion)
	if err != nil {
		return 0, fmt.Errorf("dataset: emotion %q is not an integer label", emotion)
	}
	idx := n - 1
	if idx < 0 || idx >= a.cfg.NumEmotions {
		return 0, fmt.Errorf("dataset: emotion %q outside 1..%d", emotion, a.cfg.NumEmotions)
	}
	return idx, nil
}

// Fetch assembles the example for m. Frames are read in numeric order; each
// mel is padded to the fixed width and normalized on its own; the sequence is
// zero-padded at the tail or truncated to the first L usable frames.
func (a *Assembler) Fetch(m Meta) (*Example, error) {
	label, err := a.LabelIndex(m.Emotion)
	if err != nil {
		return nil, err
	}
	group := store.Join(m.Clip, m.Emotion)
	keys, err := a.st.FrameKeys(group)
	if err != nil {
		return nil, fmt.Errorf("dataset: fetch %s: %w", m, err)
	}

	L := a.cfg.SequenceLength
	var (
		landmarks = make([][]float32, 0, L)
		mels      = make([][]float32, 0, L)
		phonemes  = make([][]int32, 0, L)
	)
	for _, k := range keys {
		if len(landmarks) == L {
			break
		}
		fd, err := a.st.ReadFrame(store.Join(group, strconv.Itoa(k)))
		if err != nil {
			return nil, fmt.Errorf("dataset: fetch %s: %w", m, err)
		}
		if fd.Phoneme == phoneme.Unknown && a.cfg.UnknownPhonemes == DropUnknown {
			continue
		}
		if fd.Mel.Bands != a.cfg.MelBands {
			return nil, fmt.Errorf("dataset: fetch %s: frame %d has %d mel bands, want %d: %w",
				m, k, fd.Mel.Bands, a.cfg.MelBands, store.ErrFormat)
		}
		landmarks = append(landmarks, landmarkFrame(fd.Landmarks, a.cfg.LandmarkCount))
		mels = append(mels, melFrame(fd.Mel, a.cfg.FixedMelWidth))
		phonemes = append(phonemes, []int32{int32(fd.Phoneme)})
	}
	if len(landmarks) == 0 {
		return nil, fmt.Errorf("dataset: fetch %s: %w", m, ErrNoFrames)
	}

	melSize := a.cfg.MelBands * a.cfg.FixedMelWidth
	return &Example{
		Meta: m,
		Landmarks: Tensor{
			Shape: []int{L, a.cfg.LandmarkCount, 3},
			Data:  PadSequence(landmarks, L, a.cfg.LandmarkCount*3),
		},
		Mel: Tensor{
			Shape: []int{L, a.cfg.MelBands, a.cfg.FixedMelWidth, 1},
			Data:  PadSequence(mels, L, melSize),
		},
		Phonemes: IntTensor{
			Shape: []int{L, 1},
			Data:  PadSequence(phonemes, L, 1),
		},
		Label:  label,
		Frames: len(landmarks),
	}, nil
}

// shuffle permutes meta in place with the assembler's generator.
func (a *Assembler) shuffle(meta []Meta) {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	a.rng.Shuffle(len(meta), func(i, j int) { meta[i], meta[j] = meta[j], meta[i] })
}

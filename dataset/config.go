package dataset

import (
	"errors"
	"fmt"
)

// UnknownPolicy decides what happens to frames whose phoneme is unknown.
type UnknownPolicy string

const (
	// KeepUnknown retains unknown-phoneme frames as samples with code -1.
	KeepUnknown UnknownPolicy = "keep"

	// DropUnknown removes unknown-phoneme frames before padding/truncation.
	DropUnknown UnknownPolicy = "drop"
)

// IsValid reports whether p is a known policy.
func (p UnknownPolicy) IsValid() bool { return p == KeepUnknown || p == DropUnknown }

// Config fixes the tensor shapes produced by an [Assembler].
type Config struct {
	// SequenceLength is L, the number of frames per example. Default: 30.
	SequenceLength int

	// FixedMelWidth is the time-column count of every mel frame. Default: 64.
	FixedMelWidth int

	// MelBands is the expected mel band count. Default: 128.
	MelBands int

	// LandmarkCount is the number of points per frame. Default: 478.
	LandmarkCount int

	// NumEmotions is the one-hot label width. Default: 8.
	NumEmotions int

	// Workers bounds concurrent fetches inside one batch. Default: 4.
	Workers int

	// UnknownPhonemes selects the unknown-phoneme frame policy. Default: keep.
	UnknownPhonemes UnknownPolicy

	// Seed seeds shuffling. Zero picks a random seed.
	Seed uint64
}

// DefaultConfig returns the reference shapes.
func DefaultConfig() Config {
	return Config{
		SequenceLength:  30,
		FixedMelWidth:   64,
		MelBands:        128,
		LandmarkCount:   478,
		NumEmotions:     8,
		Workers:         4,
		UnknownPhonemes: KeepUnknown,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SequenceLength == 0 {
		c.SequenceLength = d.SequenceLength
	}
	if c.FixedMelWidth == 0 {
		c.FixedMelWidth = d.FixedMelWidth
	}
	if c.MelBands == 0 {
		c.MelBands = d.MelBands
	}
	if c.LandmarkCount == 0 {
		c.LandmarkCount = d.LandmarkCount
	}
	if c.NumEmotions == 0 {
		c.NumEmotions = d.NumEmotions
	}
	if c.Workers == 0 {
		c.Workers = d.Workers
	}
	if c.UnknownPhonemes == "" {
		c.UnknownPhonemes = d.UnknownPhonemes
	}
	return c
}

// Validate returns a joined error listing every invalid field.
func (c Config) Validate() error {
	var errs []error
	positive := []struct {
		name string
		v    int
	}{
		{"sequence_length", c.SequenceLength},
		{"fixed_mel_width", c.FixedMelWidth},
		{"mel_bands", c.MelBands},
		{"landmark_count", c.LandmarkCount},
		{"num_emotions", c.NumEmotions},
		{"workers", c.Workers},
	}
	for _, p := range positive {
		if p.v <= 0 {
			errs = append(errs, fmt.Errorf("dataset: %s must be positive, got %d", p.name, p.v))
		}
	}
	if !c.UnknownPhonemes.IsValid() {
		errs = append(errs, fmt.Errorf("dataset: unknown_phonemes %q is invalid; valid values: keep, drop", c.UnknownPhonemes))
	}
	return errors.Join(errs...)
}

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/maastricht-university/emocorpus/dataset"
	"github.com/maastricht-university/emocorpus/media"
)

// EnvPrefix prefixes environment overrides: EMOCORPUS_AUDIO_SAMPLE_RATE sets
// audio.sample_rate.
const EnvPrefix = "EMOCORPUS"

type Service struct {
	URL            string `yaml:"url" mapstructure:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}
type Services struct {
	Landmarks Service `yaml:"landmarks" mapstructure:"landmarks"`
	ASR       Service `yaml:"asr" mapstructure:"asr"`
}
type Audio struct {
	SampleRate int     `yaml:"sample_rate" mapstructure:"sample_rate"`
	NFFT       int     `yaml:"n_fft" mapstructure:"n_fft"`
	HopLength  int     `yaml:"hop_length" mapstructure:"hop_length"`
	NMels      int     `yaml:"n_mels" mapstructure:"n_mels"`
	FMin       float64 `yaml:"fmin" mapstructure:"fmin"`
	FMax       float64 `yaml:"fmax" mapstructure:"fmax"`
	TopDB      float64 `yaml:"top_db" mapstructure:"top_db"`
}
type Video struct {
	FFmpeg  string `yaml:"ffmpeg" mapstructure:"ffmpeg"`
	FFprobe string `yaml:"ffprobe" mapstructure:"ffprobe"`
}
type Aligner struct {
	Binary         string   `yaml:"binary" mapstructure:"binary"`
	AcousticModel  string   `yaml:"acoustic_model" mapstructure:"acoustic_model"`
	Dictionary     string   `yaml:"dictionary" mapstructure:"dictionary"`
	TimeoutSeconds int      `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	Args           []string `yaml:"args" mapstructure:"args"`
	PhoneTier      string   `yaml:"phone_tier" mapstructure:"phone_tier"`
}
type Transcripts struct {
	// Statements maps statement ids to the spoken sentence.
	Statements map[string]string `yaml:"statements" mapstructure:"statements"`
	// ASRFallback transcribes clips whose statement id is not listed.
	ASRFallback bool `yaml:"asr_fallback" mapstructure:"asr_fallback"`
}
type Dataset struct {
	SequenceLength  int     `yaml:"sequence_length" mapstructure:"sequence_length"`
	FixedMelWidth   int     `yaml:"fixed_mel_width" mapstructure:"fixed_mel_width"`
	MelBands        int     `yaml:"mel_bands" mapstructure:"mel_bands"`
	LandmarkCount   int     `yaml:"landmark_count" mapstructure:"landmark_count"`
	NumEmotions     int     `yaml:"num_emotions" mapstructure:"num_emotions"`
	Workers         int     `yaml:"workers" mapstructure:"workers"`
	UnknownPhonemes string  `yaml:"unknown_phonemes" mapstructure:"unknown_phonemes"`
	Seed            uint64  `yaml:"seed" mapstructure:"seed"`
	BatchSize       int     `yaml:"batch_size" mapstructure:"batch_size"`
	TestFraction    float64 `yaml:"test_fraction" mapstructure:"test_fraction"`
}
type Paths struct {
	Data    string `yaml:"data" mapstructure:"data"`
	Outputs string `yaml:"outputs" mapstructure:"outputs"`
	Master  string `yaml:"master" mapstructure:"master"`
	Corpus  string `yaml:"corpus" mapstructure:"corpus"`
}
type Root struct {
	Pipeline struct {
		Name    string `yaml:"name" mapstructure:"name"`
		Version string `yaml:"version" mapstructure:"version"`
		LogLvl  string `yaml:"log_level" mapstructure:"log_level"`
	} `yaml:"pipeline" mapstructure:"pipeline"`
	Audio       Audio       `yaml:"audio" mapstructure:"audio"`
	Video       Video       `yaml:"video" mapstructure:"video"`
	Services    Services    `yaml:"services" mapstructure:"services"`
	Aligner     Aligner     `yaml:"aligner" mapstructure:"aligner"`
	Transcripts Transcripts `yaml:"transcripts" mapstructure:"transcripts"`
	Dataset     Dataset     `yaml:"dataset" mapstructure:"dataset"`
	Paths       Paths       `yaml:"paths" mapstructure:"paths"`
}

// defaults mirrors the reference corpus: RAVDESS statements, 44.1 kHz audio,
// 478-point face mesh.
var defaults = map[string]any{
	"pipeline.name":      "emocorpus",
	"pipeline.version":   "0.1.0",
	"pipeline.log_level": "info",

	"audio.sample_rate": 44100,
	"audio.n_fft":       2048,
	"audio.hop_length":  512,
	"audio.n_mels":      128,
	"audio.fmin":        0.0,
	"audio.fmax":        0.0,
	"audio.top_db":      80.0,

	"video.ffmpeg":  "ffmpeg",
	"video.ffprobe": "ffprobe",

	"services.landmarks.url":             "http://localhost:8010",
	"services.landmarks.timeout_seconds": 30,
	"services.asr.url":                   "",
	"services.asr.timeout_seconds":       120,

	"aligner.binary":          "mfa",
	"aligner.acoustic_model":  "english_mfa",
	"aligner.dictionary":      "english_mfa",
	"aligner.timeout_seconds": 600,
	"aligner.args":            []string{"--clean", "--single_speaker"},
	"aligner.phone_tier":      "phones",

	"transcripts.statements": map[string]any{
		"01": "kids are talking by the door",
		"02": "dogs are sitting by the door",
	},
	"transcripts.asr_fallback": false,

	"dataset.sequence_length":  30,
	"dataset.fixed_mel_width":  64,
	"dataset.mel_bands":        128,
	"dataset.landmark_count":   478,
	"dataset.num_emotions":     8,
	"dataset.workers":          4,
	"dataset.unknown_phonemes": "keep",
	"dataset.seed":             0,
	"dataset.batch_size":       16,
	"dataset.test_fraction":    0.2,

	"paths.data":    "data",
	"paths.outputs": "outputs",
	"paths.master":  "outputs/master.sqlite",
	"paths.corpus":  "outputs/corpus.sqlite",
}

// NewViper returns a viper instance carrying the defaults and EMOCORPUS_*
// environment overrides. Callers may bind flags to it before [LoadViper].
func NewViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")
	return v
}

// Load reads the configuration at path over the defaults. An empty path
// tries config/<CONFIG_ENV>/config.yaml (CONFIG_ENV defaults to "dev") and
// then config.yaml; if neither exists the defaults are used.
func Load(path string) (*Root, error) { return LoadViper(NewViper(), path) }

// LoadViper is Load on a caller-prepared viper instance.
func LoadViper(v *viper.Viper, path string) (*Root, error) {
	if path == "" {
		path = guess()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	return decode(v)
}

// LoadFromReader reads YAML from r over the defaults.
func LoadFromReader(r io.Reader) (*Root, error) {
	v := NewViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return decode(v)
}

func guess() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	for _, p := range []string{
		filepath.Join("config", env, "config.yaml"),
		"config.yaml",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func decode(v *viper.Viper) (*Root, error) {
	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate returns every invalid setting as one joined error.
func (c *Root) Validate() error {
	var errs []error
	if err := c.MelConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config audio: %w", err))
	}
	if err := c.DatasetConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config dataset: %w", err))
	}
	if c.Dataset.MelBands != c.Audio.NMels {
		errs = append(errs, fmt.Errorf("config: dataset.mel_bands %d differs from audio.n_mels %d", c.Dataset.MelBands, c.Audio.NMels))
	}
	if c.Dataset.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("config: dataset.batch_size must be positive, got %d", c.Dataset.BatchSize))
	}
	if c.Dataset.TestFraction < 0 || c.Dataset.TestFraction >= 1 {
		errs = append(errs, fmt.Errorf("config: dataset.test_fraction %v outside [0, 1)", c.Dataset.TestFraction))
	}
	if c.Aligner.PhoneTier == "" {
		errs = append(errs, errors.New("config: aligner.phone_tier is empty"))
	}
	if c.Paths.Outputs == "" {
		errs = append(errs, errors.New("config: paths.outputs is empty"))
	}
	return errors.Join(errs...)
}

// MelConfig converts the audio section.
func (c *Root) MelConfig() media.MelConfig {
	return media.MelConfig{
		SampleRate: c.Audio.SampleRate,
		NFFT:       c.Audio.NFFT,
		HopLength:  c.Audio.HopLength,
		NMels:      c.Audio.NMels,
		FMin:       c.Audio.FMin,
		FMax:       c.Audio.FMax,
		TopDB:      c.Audio.TopDB,
	}
}

// DatasetConfig converts the dataset section.
func (c *Root) DatasetConfig() dataset.Config {
	return dataset.Config{
		SequenceLength:  c.Dataset.SequenceLength,
		FixedMelWidth:   c.Dataset.FixedMelWidth,
		MelBands:        c.Dataset.MelBands,
		LandmarkCount:   c.Dataset.LandmarkCount,
		NumEmotions:     c.Dataset.NumEmotions,
		Workers:         c.Dataset.Workers,
		UnknownPhonemes: dataset.UnknownPolicy(c.Dataset.UnknownPhonemes),
		Seed:            c.Dataset.Seed,
	}
}

// Tools returns the ffmpeg binaries.
func (c *Root) Tools() media.Tools {
	return media.Tools{FFmpeg: c.Video.FFmpeg, FFprobe: c.Video.FFprobe}
}

// Dump writes c as YAML.
func (c *Root) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

func DurSeconds(n int) time.Duration { return time.Duration(n) * time.Second }

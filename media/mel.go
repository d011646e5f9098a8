package media

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/maastricht-university/emocorpus/record"
)

// MelConfig parameterizes [MelSpectrogram].
type MelConfig struct {
	SampleRate int     `yaml:"sample_rate"`
	NFFT       int     `yaml:"n_fft"`
	HopLength  int     `yaml:"hop_length"`
	NMels      int     `yaml:"n_mels"`
	FMin       float64 `yaml:"fmin"`
	// FMax of zero means SampleRate/2.
	FMax  float64 `yaml:"fmax"`
	TopDB float64 `yaml:"top_db"`
}

// DefaultMelConfig returns the corpus settings: 44.1 kHz, 2048-point FFT,
// hop 512, 128 bands, 80 dB dynamic range.
func DefaultMelConfig() MelConfig {
	return MelConfig{SampleRate: 44100, NFFT: 2048, HopLength: 512, NMels: 128, TopDB: 80}
}

// Validate reports the first invalid field.
func (c MelConfig) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("mel: sample rate %d", c.SampleRate)
	case c.NFFT < 2 || c.NFFT%2 != 0:
		return fmt.Errorf("mel: n_fft %d must be even and >= 2", c.NFFT)
	case c.HopLength <= 0:
		return fmt.Errorf("mel: hop length %d", c.HopLength)
	case c.NMels <= 0:
		return fmt.Errorf("mel: n_mels %d", c.NMels)
	case c.FMin < 0 || (c.FMax != 0 && c.FMax <= c.FMin):
		return fmt.Errorf("mel: frequency range [%v, %v]", c.FMin, c.FMax)
	case c.TopDB < 0:
		return fmt.Errorf("mel: top_db %v", c.TopDB)
	}
	return nil
}

const (
	amin   = 1e-5
	refAmp = 1.0
)

// MelSpectrogram computes a (NMels, frames) log-mel spectrogram of samples:
// centred STFT with reflect padding and a periodic Hann window, power
// spectrum, Slaney mel filterbank, then 20*log10 clipped to TopDB below the
// peak. frames = 1 + len(samples)/HopLength.
func MelSpectrogram(samples []float64, cfg MelConfig) (record.Mel, error) {
	if err := cfg.Validate(); err != nil {
		return record.Mel{}, err
	}
	if len(samples) == 0 {
		return record.Mel{}, errors.New("mel: no samples")
	}

	power := powerSpectrogram(samples, cfg.NFFT, cfg.HopLength)
	bank := melFilterbank(cfg)
	frames := len(power)
	mel := record.NewMel(cfg.NMels, frames)
	for t, spec := range power {
		for b, filter := range bank {
			mel.Set(b, t, floats.Dot(filter, spec))
		}
	}

	for i, v := range mel.Data {
		mel.Data[i] = 20*math.Log10(math.Max(amin, v)) - 20*math.Log10(math.Max(amin, refAmp))
	}
	if cfg.TopDB > 0 {
		floor := floats.Max(mel.Data) - cfg.TopDB
		for i, v := range mel.Data {
			mel.Data[i] = math.Max(v, floor)
		}
	}
	return mel, nil
}

// powerSpectrogram returns |STFT|^2 per frame, NFFT/2+1 bins each.
func powerSpectrogram(x []float64, nfft, hop int) [][]float64 {
	pad := nfft / 2
	padded := make([]float64, len(x)+2*pad)
	for i := range padded {
		padded[i] = x[reflect(i-pad, len(x))]
	}

	win := hann(nfft)
	fft := fourier.NewFFT(nfft)
	frames := 1 + (len(padded)-nfft)/hop
	out := make([][]float64, frames)
	buf := make([]float64, nfft)
	coeffs := make([]complex128, nfft/2+1)
	for f := 0; f < frames; f++ {
		start := f * hop
		for k := range buf {
			buf[k] = padded[start+k] * win[k]
		}
		coeffs = fft.Coefficients(coeffs, buf)
		row := make([]float64, len(coeffs))
		for k, c := range coeffs {
			a := cmplx.Abs(c)
			row[k] = a * a
		}
		out[f] = row
	}
	return out
}

// reflect maps i into [0, n) by mirroring about the edges without repeating
// them, as numpy's "reflect" mode does.
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// hann is the periodic Hann window used for spectral analysis.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSp     = 200.0 / 3
	melMinLog  = 1000.0
	melLogStep = 0.06875177742094912 // ln(6.4)/27
)

func hzToMel(f float64) float64 {
	if f < melMinLog {
		return f / melFSp
	}
	return melMinLog/melFSp + math.Log(f/melMinLog)/melLogStep
}

func melToHz(m float64) float64 {
	minLogMel := melMinLog / melFSp
	if m < minLogMel {
		return m * melFSp
	}
	return melMinLog * math.Exp(melLogStep*(m-minLogMel))
}

// melFilterbank builds NMels triangular filters over NFFT/2+1 bins with
// Slaney area normalization.
func melFilterbank(cfg MelConfig) [][]float64 {
	fmax := cfg.FMax
	if fmax == 0 {
		fmax = float64(cfg.SampleRate) / 2
	}
	bins := cfg.NFFT/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(cfg.SampleRate) / float64(cfg.NFFT)
	}

	melPts := make([]float64, cfg.NMels+2)
	floats.Span(melPts, hzToMel(cfg.FMin), hzToMel(fmax))
	hz := make([]float64, len(melPts))
	for i, m := range melPts {
		hz[i] = melToHz(m)
	}

	bank := make([][]float64, cfg.NMels)
	for b := range bank {
		lo, mid, hi := hz[b], hz[b+1], hz[b+2]
		enorm := 2 / (hi - lo)
		row := make([]float64, bins)
		for k, f := range fftFreqs {
			lower := (f - lo) / (mid - lo)
			upper := (hi - f) / (hi - mid)
			row[k] = math.Max(0, math.Min(lower, upper)) * enorm
		}
		bank[b] = row
	}
	return bank
}

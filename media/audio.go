package media

import (
	"context"
	"fmt"

	"github.com/maastricht-university/emocorpus/record"
)

// FileAudio extracts a clip's audio track to WAV and computes its mel
// spectrogram.
type FileAudio struct {
	Tools Tools
	Mel   MelConfig
}

// Spectrogram writes the audio of videoPath to wavPath and returns its spectrogram.
func (a FileAudio) Spectrogram(ctx context.Context, videoPath, wavPath string) (record.Mel, error) {
	if err := a.Mel.Validate(); err != nil {
		return record.Mel{}, err
	}
	if err := a.Tools.ExtractWAV(ctx, videoPath, wavPath, a.Mel.SampleRate); err != nil {
		return record.Mel{}, err
	}
	samples, sr, err := LoadWAV(wavPath)
	if err != nil {
		return record.Mel{}, err
	}
	if sr != a.Mel.SampleRate {
		return record.Mel{}, fmt.Errorf("wav %s: sample rate %d, want %d", wavPath, sr, a.Mel.SampleRate)
	}
	return MelSpectrogram(samples, a.Mel)
}

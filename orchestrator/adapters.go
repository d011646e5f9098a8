package orchestrator

import (
	"context"
	"fmt"

	"github.com/maastricht-university/emocorpus/clients"
	"github.com/maastricht-university/emocorpus/media"
	"github.com/maastricht-university/emocorpus/record"
)

type FrameSource interface {
	OpenFrames(ctx context.Context, path string) (*media.FrameCursor, error)
}

type LandmarkDetector interface {
	Detect(ctx context.Context, jpeg []byte, timestampMs int) ([]record.Point, error)
}

type AudioPipeline interface {
	Spectrogram(ctx context.Context, videoPath, wavPath string) (record.Mel, error)
}

// ForcedAligner returns the TextGrid path for <inputDir>/<stem>.{wav,txt}.
type ForcedAligner interface {
	Align(ctx context.Context, inputDir, outputDir, stem string) (string, error)
}

type TranscriptSource interface {
	Transcript(ctx context.Context, id ClipID, wavPath string) (string, error)
}

type httpLandmarks struct {
	http *clients.HTTP
	url  string
}

func (d httpLandmarks) Detect(ctx context.Context, jpeg []byte, timestampMs int) ([]record.Point, error) {
	resp, err := d.http.Landmarks(ctx, d.url, jpeg, timestampMs)
	if err != nil {
		return nil, err
	}
	return resp.Points(0), nil
}

type Statements struct {
	Text map[string]string
	// ASR fallback for ids missing from Text
	ASR    *clients.HTTP
	ASRURL string
}

func (s Statements) Transcript(ctx context.Context, id ClipID, wavPath string) (string, error) {
	if t, ok := s.Text[id.Statement]; ok && t != "" {
		return t, nil
	}
	if s.ASR == nil || s.ASRURL == "" {
		return "", fmt.Errorf("no transcript for statement %q: %w", id.Statement, ErrSkipped)
	}
	resp, err := s.ASR.ASR(ctx, s.ASRURL, wavPath)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("asr returned no text for %s: %w", id.Stem, ErrSkipped)
	}
	return text, nil
}

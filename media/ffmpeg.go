// Package media wraps ffmpeg for frame and audio extraction and computes
// log-mel spectrograms.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Tools names the external binaries. Empty fields fall back to "ffmpeg" and
// "ffprobe" on PATH.
type Tools struct {
	FFmpeg  string
	FFprobe string
}

func (t Tools) ffmpeg() string {
	if strings.TrimSpace(t.FFmpeg) == "" {
		return "ffmpeg"
	}
	return t.FFmpeg
}

func (t Tools) ffprobe() string {
	if strings.TrimSpace(t.FFprobe) == "" {
		return "ffprobe"
	}
	return t.FFprobe
}

// Probe returns the average frame rate of the first video stream of path.
func (t Tools) Probe(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, t.ffprobe(),
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	fps, err := parseRate(out.String())
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return fps, nil
}

// parseRate parses ffprobe rates such as "30000/1001" or "25".
func parseRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("no video stream")
	}
	num, den, frac := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("frame rate %q: %w", s, err)
	}
	d := 1.0
	if frac {
		if d, err = strconv.ParseFloat(den, 64); err != nil {
			return 0, fmt.Errorf("frame rate %q: %w", s, err)
		}
	}
	if n <= 0 || d <= 0 {
		return 0, fmt.Errorf("frame rate %q is not positive", s)
	}
	return n / d, nil
}

// ExtractWAV writes the audio track of src to dst as mono 16-bit PCM at
// sampleRate. dst is overwritten.
func (t Tools) ExtractWAV(ctx context.Context, src, dst string, sampleRate int) error {
	cmd := exec.CommandContext(ctx, t.ffmpeg(),
		"-hide_banner", "-v", "error", "-y",
		"-i", src,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-acodec", "pcm_s16le",
		dst)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg extract audio %s: %w: %s", src, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

package orchestrator

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var videoExts = map[string]bool{".mp4": true, ".avi": true, ".mov": true, ".mkv": true}

func ParseClipName(stem string) (ClipID, error) {
	parts := strings.Split(stem, "-")
	if len(parts) != 7 {
		return ClipID{}, fmt.Errorf("clip name %q: want 7 dash-separated fields, got %d: %w", stem, len(parts), ErrSkipped)
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil || p == "" {
			return ClipID{}, fmt.Errorf("clip name %q: field %q is not numeric: %w", stem, p, ErrSkipped)
		}
	}
	return ClipID{
		Stem:       stem,
		Modality:   parts[0],
		Channel:    parts[1],
		Emotion:    parts[2],
		Intensity:  parts[3],
		Statement:  parts[4],
		Repetition: parts[5],
		Actor:      parts[6],
	}, nil
}

func emotionKey(id string) (string, error) {
	n, err := strconv.Atoi(id)
	if err != nil || n < 0 {
		return "", fmt.Errorf("emotion id %q: %w", id, ErrSkipped)
	}
	return fmt.Sprintf("%02d", n), nil
}

func ListClips(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if videoExts[strings.ToLower(filepath.Ext(path))] {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func stemOf(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func writeTranscript(dir, stem, text string) (string, error) {
	path := filepath.Join(dir, stem+".txt")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(text)+"\n"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// detectors in video mode need non-decreasing timestamps
func checkMonotonic(prev, ts int) error {
	if ts < prev {
		return fmt.Errorf("frame timestamp %d ms precedes previous %d ms", ts, prev)
	}
	return nil
}

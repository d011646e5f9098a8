package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoAlignment is returned when the aligner exits cleanly without writing
// the expected TextGrid.
var ErrNoAlignment = errors.New("aligner produced no TextGrid")

// MFA runs the Montreal Forced Aligner as a blocking process.
type MFA struct {
	// Binary defaults to "mfa" on PATH.
	Binary        string
	AcousticModel string
	Dictionary    string
	// Timeout bounds one alignment; zero means no limit beyond ctx.
	Timeout time.Duration
	// Args are appended to the align command, e.g. "--clean".
	Args []string
}

// Align aligns the corpus in inputDir (WAV plus transcript per stem) and
// returns the path of outputDir/<stem>.TextGrid. A TextGrid left by an
// earlier run is removed first.
func (m MFA) Align(ctx context.Context, inputDir, outputDir, stem string) (string, error) {
	bin := m.Binary
	if strings.TrimSpace(bin) == "" {
		bin = "mfa"
	}
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	out := filepath.Join(outputDir, stem+".TextGrid")
	if err := os.Remove(out); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("mfa align %s: clearing previous TextGrid: %w", stem, err)
	}

	args := append([]string{"align", inputDir, m.Dictionary, m.AcousticModel, outputDir}, m.Args...)
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("mfa align %s: %w: %s", stem, err, msg)
	}

	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("mfa align %s: %w: %v", stem, ErrNoAlignment, err)
	}
	return out, nil
}

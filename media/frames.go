package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// maxFrameBytes bounds a single JPEG frame.
const maxFrameBytes = 32 << 20

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// Frame is one decoded video frame as a JPEG image.
type Frame struct {
	// Index is 1-based.
	Index int

	// TimestampMs is int((Index-1) * 1000/fps).
	TimestampMs int

	JPEG []byte
}

// FrameCursor iterates the frames of a video in order. It is not safe for
// concurrent use.
//
//	cur, err := tools.OpenFrames(ctx, path)
//	defer cur.Close()
//	for cur.Next() {
//		f := cur.Frame()
//	}
//	err = cur.Err()
type FrameCursor struct {
	fps   float64
	sc    *bufio.Scanner
	cur   Frame
	index int
	err   error
	done  bool

	cmd    *exec.Cmd
	stderr *bytes.Buffer
	closer io.Closer
}

// OpenFrames starts ffmpeg on path and returns a cursor over its frames,
// re-encoded as an MJPEG image stream.
func (t Tools) OpenFrames(ctx context.Context, path string) (*FrameCursor, error) {
	fps, err := t.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, t.ffmpeg(),
		"-hide_banner", "-v", "error",
		"-i", path,
		"-an",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"pipe:1")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frames %s: %w", path, err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg frames %s: %w", path, err)
	}
	c := NewFrameCursor(stdout, fps)
	// Wait closes stdout.
	c.cmd, c.stderr, c.closer = cmd, &stderr, nil
	return c, nil
}

// NewFrameCursor reads concatenated JPEG images from r.
func NewFrameCursor(r io.Reader, fps float64) *FrameCursor {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxFrameBytes)
	sc.Split(splitJPEG)
	c := &FrameCursor{fps: fps, sc: sc}
	if rc, ok := r.(io.Closer); ok {
		c.closer = rc
	}
	return c
}

// FPS returns the stream frame rate.
func (c *FrameCursor) FPS() float64 { return c.fps }

// FrameDurationMs returns 1000/fps.
func (c *FrameCursor) FrameDurationMs() float64 { return 1000 / c.fps }

// Next advances to the next frame. It returns false at the end of the stream
// or on error.
func (c *FrameCursor) Next() bool {
	if c.done {
		return false
	}
	if !c.sc.Scan() {
		c.done = true
		c.err = c.sc.Err()
		if c.cmd != nil {
			if err := c.cmd.Wait(); err != nil && c.err == nil {
				c.err = fmt.Errorf("ffmpeg frames: %w: %s", err, strings.TrimSpace(c.stderr.String()))
			}
			c.cmd = nil
		}
		return false
	}
	c.index++
	c.cur = Frame{
		Index:       c.index,
		TimestampMs: int(float64(c.index-1) * (1000 / c.fps)),
		JPEG:        bytes.Clone(c.sc.Bytes()),
	}
	return true
}

// Frame returns the current frame.
func (c *FrameCursor) Frame() Frame { return c.cur }

// Exhausted reports whether the stream has ended.
func (c *FrameCursor) Exhausted() bool { return c.done }

// Err returns the first error met while reading.
func (c *FrameCursor) Err() error { return c.err }

// Close stops the decoder. It is safe to call after exhaustion.
func (c *FrameCursor) Close() error {
	c.done = true
	var errs []error
	if c.closer != nil {
		if err := c.closer.Close(); err != nil {
			errs = append(errs, err)
		}
		c.closer = nil
	}
	if c.cmd != nil {
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		_ = c.cmd.Wait()
		c.cmd = nil
	}
	return errors.Join(errs...)
}

// splitJPEG is a bufio.SplitFunc yielding one SOI..EOI image per token.
// Bytes before an SOI marker are discarded.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF that may begin a marker.
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}
	end := bytes.Index(data[start+2:], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, fmt.Errorf("truncated JPEG frame (%d bytes)", len(data)-start)
		}
		return start, nil, nil
	}
	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}

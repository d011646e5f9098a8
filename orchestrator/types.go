package orchestrator

import (
	"errors"
	"time"
)

// ErrSkipped marks clips that are not ingested.
var ErrSkipped = errors.New("clip skipped")

type ClipStatus string

const (
	StatusSucceeded ClipStatus = "succeeded"
	StatusSkipped   ClipStatus = "skipped"
	StatusFailed    ClipStatus = "failed"
)

// modality-channel-emotion-intensity-statement-repetition-actor
type ClipID struct {
	Stem       string
	Modality   string
	Channel    string
	Emotion    string
	Intensity  string
	Statement  string
	Repetition string
	Actor      string
}

func (id ClipID) AudioVideo() bool { return id.Modality == "01" }

type ClipResult struct {
	Clip     string        `json:"clip"`
	Source   string        `json:"source"`
	Status   ClipStatus    `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Emotion  string        `json:"emotion,omitempty"`
	Frames   int           `json:"frames"`
	Store    string        `json:"store,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

type Report struct {
	RunID      string       `json:"run_id"`
	InputDir   string       `json:"input_dir"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Succeeded  int          `json:"succeeded"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	Frames     int          `json:"frames"`
	Results    []ClipResult `json:"results"`
	Path string `json:"-"`
}

func (r *Report) add(res ClipResult) {
	r.Results = append(r.Results, res)
	switch res.Status {
	case StatusSucceeded:
		r.Succeeded++
		r.Frames += res.Frames
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	}
}

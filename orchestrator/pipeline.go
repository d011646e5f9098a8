// Package orchestrator ingests clips into per-clip stores.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/emocorpus/align"
	"github.com/maastricht-university/emocorpus/clients"
	cfg "github.com/maastricht-university/emocorpus/config"
	"github.com/maastricht-university/emocorpus/media"
	"github.com/maastricht-university/emocorpus/observe"
	"github.com/maastricht-university/emocorpus/record"
	"github.com/maastricht-university/emocorpus/store"
	"github.com/maastricht-university/emocorpus/textgrid"
)

// ErrAllFailed is returned by Run when clips were attempted and none succeeded.
var ErrAllFailed = errors.New("every clip failed")

const partialExt = ".partial"

type Pipeline struct {
	cfg *cfg.Root

	frames      FrameSource
	detector    LandmarkDetector
	audio       AudioPipeline
	aligner     ForcedAligner
	transcripts TranscriptSource

	log      logrus.FieldLogger
	metrics  *observe.Metrics
	progress func(ClipResult)
	store    []store.Option
	now      func() time.Time
}

type Option func(*Pipeline)

func WithFrameSource(f FrameSource) Option           { return func(p *Pipeline) { p.frames = f } }
func WithLandmarkDetector(d LandmarkDetector) Option { return func(p *Pipeline) { p.detector = d } }
func WithAudio(a AudioPipeline) Option               { return func(p *Pipeline) { p.audio = a } }
func WithAligner(a ForcedAligner) Option             { return func(p *Pipeline) { p.aligner = a } }
func WithTranscripts(t TranscriptSource) Option      { return func(p *Pipeline) { p.transcripts = t } }
func WithLogger(l logrus.FieldLogger) Option         { return func(p *Pipeline) { p.log = l } }
func WithMetrics(m *observe.Metrics) Option          { return func(p *Pipeline) { p.metrics = m } }

func WithProgress(fn func(ClipResult)) Option { return func(p *Pipeline) { p.progress = fn } }

func WithStoreOptions(opts ...store.Option) Option {
	return func(p *Pipeline) { p.store = append(p.store, opts...) }
}

func NewPipeline(c *cfg.Root, opts ...Option) *Pipeline {
	tools := c.Tools()
	p := &Pipeline{
		cfg:      c,
		frames:   tools,
		detector: httpLandmarks{http: clients.NewHTTP(cfg.DurSeconds(c.Services.Landmarks.TimeoutSeconds)), url: c.Services.Landmarks.URL},
		audio:    media.FileAudio{Tools: tools, Mel: c.MelConfig()},
		aligner: clients.MFA{
			Binary:        c.Aligner.Binary,
			AcousticModel: c.Aligner.AcousticModel,
			Dictionary:    c.Aligner.Dictionary,
			Timeout:       cfg.DurSeconds(c.Aligner.TimeoutSeconds),
			Args:          c.Aligner.Args,
		},
		log:     logrus.StandardLogger(),
		metrics: observe.Global(),
		now:     time.Now,
	}
	st := Statements{Text: c.Transcripts.Statements}
	if c.Transcripts.ASRFallback && c.Services.ASR.URL != "" {
		st.ASR = clients.NewHTTP(cfg.DurSeconds(c.Services.ASR.TimeoutSeconds))
		st.ASRURL = c.Services.ASR.URL
	}
	p.transcripts = st
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Run(ctx context.Context, inputDir string) (*Report, error) {
	clips, err := ListClips(inputDir)
	if err != nil {
		return nil, fmt.Errorf("ingest: list %s: %w", inputDir, err)
	}
	rep := &Report{RunID: uuid.NewString(), InputDir: inputDir, StartedAt: p.now()}
	log := p.log.WithField("run", rep.RunID)
	log.WithFields(logrus.Fields{"input": inputDir, "clips": len(clips)}).Info("ingestion started")

	var runErr error
	for _, path := range clips {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		rep.add(p.ProcessClip(ctx, path))
	}
	rep.FinishedAt = p.now()

	if path, err := persist(p.cfg.Paths.Outputs, rep); err != nil {
		log.WithError(err).Error("writing run report")
	} else {
		rep.Path = path
	}
	log.WithFields(logrus.Fields{
		"succeeded": rep.Succeeded,
		"skipped":   rep.Skipped,
		"failed":    rep.Failed,
		"frames":    rep.Frames,
		"report":    rep.Path,
	}).Info("ingestion finished")

	if runErr != nil {
		return rep, runErr
	}
	if rep.Failed > 0 && rep.Succeeded == 0 {
		return rep, fmt.Errorf("ingest %s: %w (%d clips)", inputDir, ErrAllFailed, rep.Failed)
	}
	return rep, nil
}

func (p *Pipeline) ProcessClip(ctx context.Context, videoPath string) ClipResult {
	start := p.now()
	stem := stemOf(videoPath)
	res := ClipResult{Clip: stem, Source: videoPath}
	log := p.log.WithField("clip", stem)

	frames, err := p.processClip(ctx, videoPath, &res, log)
	res.Frames = frames
	res.Duration = p.now().Sub(start)
	switch {
	case err == nil:
		res.Status = StatusSucceeded
		log.WithFields(logrus.Fields{"frames": frames, "status": res.Status}).Info("clip ingested")
	case errors.Is(err, ErrSkipped):
		res.Status, res.Reason = StatusSkipped, err.Error()
		log.WithField("status", res.Status).Info(err.Error())
	default:
		res.Status, res.Reason = StatusFailed, err.Error()
		log.WithError(err).WithField("status", res.Status).Error("clip failed")
	}

	p.metrics.RecordClip(ctx, string(res.Status), res.Duration)
	if res.Status == StatusSucceeded {
		p.metrics.RecordFrames(ctx, frames)
	}
	if p.progress != nil {
		p.progress(res)
	}
	return res
}

func (p *Pipeline) processClip(ctx context.Context, videoPath string, res *ClipResult, log logrus.FieldLogger) (int, error) {
	id, err := ParseClipName(res.Clip)
	if err != nil {
		return 0, err
	}
	if !id.AudioVideo() {
		return 0, fmt.Errorf("modality %s has no audio-video track: %w", id.Modality, ErrSkipped)
	}
	emotion, err := emotionKey(id.Emotion)
	if err != nil {
		return 0, err
	}
	res.Emotion = emotion

	dir := filepath.Join(p.cfg.Paths.Outputs, id.Stem)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	wavPath := filepath.Join(dir, id.Stem+".wav")
	mel, err := p.audio.Spectrogram(ctx, videoPath, wavPath)
	if err != nil {
		return 0, fmt.Errorf("audio: %w", err)
	}
	log.WithFields(logrus.Fields{"bands": mel.Bands, "columns": mel.Frames}).Debug("mel computed")

	text, err := p.transcripts.Transcript(ctx, id, wavPath)
	if err != nil {
		return 0, fmt.Errorf("transcript: %w", err)
	}
	if _, err := writeTranscript(dir, id.Stem, text); err != nil {
		return 0, fmt.Errorf("transcript: %w", err)
	}

	gridPath, err := p.aligner.Align(ctx, dir, dir, id.Stem)
	if err != nil {
		return 0, fmt.Errorf("align: %w", err)
	}
	grid, err := textgrid.ParseFile(gridPath)
	if err != nil {
		return 0, fmt.Errorf("align: %w", err)
	}
	tier, err := grid.Tier(p.cfg.Aligner.PhoneTier)
	if err != nil {
		return 0, fmt.Errorf("align: %w", err)
	}
	aligner, err := align.New(mel, p.cfg.Audio.SampleRate, p.cfg.Audio.HopLength, tier.Intervals())
	if err != nil {
		return 0, fmt.Errorf("align: %w", err)
	}

	cur, err := p.frames.OpenFrames(ctx, videoPath)
	if err != nil {
		return 0, fmt.Errorf("frames: %w", err)
	}
	defer cur.Close()

	storePath := filepath.Join(dir, id.Stem+store.Ext)
	partial := storePath + partialExt
	n := 0
	err = store.With(partial, store.Create, func(st *store.Store) error {
		prev := 0
		for cur.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			f := cur.Frame()
			if err := checkMonotonic(prev, f.TimestampMs); err != nil {
				return err
			}
			prev = f.TimestampMs

			pts, err := p.detector.Detect(ctx, f.JPEG, f.TimestampMs)
			if err != nil {
				return fmt.Errorf("landmarks frame %d: %w", f.Index, err)
			}
			seg, label := aligner.Frame(f.TimestampMs, cur.FrameDurationMs())
			rec := record.Record{
				Clip:       id.Stem,
				Emotion:    emotion,
				FrameIndex: f.Index,
				Landmarks:  pts,
				Phoneme:    label,
				Mel:        seg,
			}
			if err := st.AppendRecord(&rec); err != nil {
				return err
			}
			n++
		}
		if err := cur.Err(); err != nil {
			return fmt.Errorf("frames: %w", err)
		}
		if n == 0 {
			return errors.New("video has no frames")
		}
		return nil
	}, append([]store.Option{store.WithLogger(log)}, p.store...)...)
	if err != nil {
		if rerr := os.Remove(partial); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			log.WithError(rerr).Warn("removing partial store")
		}
		return 0, err
	}
	// a failed clip never replaces or leaves behind a linkable store
	if err := os.Rename(partial, storePath); err != nil {
		return 0, err
	}
	res.Store = storePath
	return n, nil
}

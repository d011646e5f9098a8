// Package corpus turns a link-composed master store into one self-contained
// corpus. Links break when a clip store moves; materialization copies every
// dataset so the result owns its data.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/emocorpus/store"
)

// ErrNoClips is returned when no clip could be materialized.
var ErrNoClips = errors.New("no clips materialized")

// ClipError records a clip that was skipped.
type ClipError struct {
	Clip string
	Err  error
}

func (e ClipError) Error() string { return fmt.Sprintf("clip %q: %v", e.Clip, e.Err) }

// Summary reports the outcome of [Materialize].
type Summary struct {
	Clips    []string
	Datasets int
	Skipped  []ClipError
}

type options struct {
	log      logrus.FieldLogger
	progress func(clip string, err error)
	store    []store.Option
}

// Option configures [Materialize].
type Option func(*options)

// WithLogger sets the logger. Default: logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option { return func(o *options) { o.log = l } }

// WithProgress registers a callback invoked once per clip, with the clip's
// error if it was skipped.
func WithProgress(fn func(clip string, err error)) Option {
	return func(o *options) { o.progress = fn }
}

// WithStoreOptions passes options to every store opened.
func WithStoreOptions(opts ...store.Option) Option {
	return func(o *options) { o.store = append(o.store, opts...) }
}

// source is one clip to copy: either an owned group of the master or a
// resolved link whose tree is the clip.
type source struct {
	clip string
	link bool
}

// Materialize copies every clip reachable from masterPath into a new store at
// outputPath, keyed clip/emotion/frame/dataset. Owned clip groups of the
// master are copied as they are, which makes materializing a materialized
// corpus reproduce it. Links are dereferenced explicitly, one clip at a time.
// A failing clip is skipped and reported in the summary; an error is returned
// only if no clip was copied.
func Materialize(ctx context.Context, masterPath, outputPath string, opts ...Option) (*Summary, error) {
	o := options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	storeOpts := append([]store.Option{store.WithLogger(o.log)}, o.store...)

	master, err := store.Open(masterPath, store.ReadOnly, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("corpus: materialize: %w", err)
	}
	defer master.Close()

	sources, err := listSources(master)
	if err != nil {
		return nil, fmt.Errorf("corpus: materialize %q: %w", masterPath, err)
	}

	sum := &Summary{}
	err = store.With(outputPath, store.Create, func(out *store.Store) error {
		for _, src := range sources {
			if err := ctx.Err(); err != nil {
				return err
			}
			log := o.log.WithFields(logrus.Fields{"clip": src.clip, "link": src.link})

			n, err := copyClip(master, out, src, log)
			if err == nil {
				err = out.Flush()
			}
			if o.progress != nil {
				o.progress(src.clip, err)
			}
			if err != nil {
				log.WithError(err).Warn("skipping clip")
				sum.Skipped = append(sum.Skipped, ClipError{Clip: src.clip, Err: err})
				continue
			}
			log.WithField("datasets", n).Info("clip materialized")
			sum.Clips = append(sum.Clips, src.clip)
			sum.Datasets += n
		}
		return nil
	}, storeOpts...)
	if err != nil {
		return sum, fmt.Errorf("corpus: materialize %q: %w", outputPath, err)
	}
	if len(sum.Clips) == 0 {
		return sum, fmt.Errorf("corpus: materialize %q: %w (%d skipped)", masterPath, ErrNoClips, len(sum.Skipped))
	}
	return sum, nil
}

// listSources returns owned clip groups and links in clip order. A link
// shadowing an owned group of the same name is ignored.
func listSources(master *store.Store) ([]source, error) {
	groups, err := master.Groups("")
	if err != nil {
		return nil, err
	}
	links, err := master.Links()
	if err != nil {
		return nil, err
	}
	owned := make(map[string]bool, len(groups))
	var out []source
	for _, g := range groups {
		owned[g] = true
		out = append(out, source{clip: g})
	}
	for _, l := range links {
		if owned[l.Name] {
			continue
		}
		out = append(out, source{clip: l.Name, link: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].clip < out[j].clip })
	return out, nil
}

// copyClip copies one clip and returns the number of datasets written. The
// clip is read fully before anything is written, so a clip that fails to
// read leaves nothing behind in out.
func copyClip(master, out *store.Store, src source, log logrus.FieldLogger) (int, error) {
	from, root := master, src.clip
	if src.link {
		linked, err := master.Resolve(src.clip)
		if err != nil {
			return 0, err
		}
		defer linked.Close()
		from, root = linked, ""
	}

	type item struct {
		path string
		d    store.Dataset
	}
	var items []item

	emotions, err := from.Groups(root)
	if err != nil {
		return 0, err
	}
	for _, emotion := range emotions {
		srcEmotion := join(root, emotion)
		frames, err := from.Groups(srcEmotion)
		if err != nil {
			return 0, err
		}
		for _, frame := range frames {
			srcFrame := join(srcEmotion, frame)
			entries, err := from.Children(srcFrame)
			if err != nil {
				return 0, err
			}
			for _, e := range entries {
				if e.Group {
					log.WithFields(logrus.Fields{"frame": frame, "key": e.Name}).Debug("skipping non-dataset")
					continue
				}
				d, err := from.Dataset(join(srcFrame, e.Name))
				if err != nil {
					return 0, err
				}
				items = append(items, item{path: store.Join(src.clip, emotion, frame, e.Name), d: d})
			}
		}
	}

	if len(items) == 0 {
		return 0, fmt.Errorf("clip %q holds no datasets: %w", src.clip, store.ErrNotFound)
	}
	for _, it := range items {
		if err := out.WriteDataset(it.path, it.d); err != nil {
			return 0, err
		}
	}
	return len(items), nil
}

func join(root, name string) string {
	if root == "" {
		return name
	}
	return store.Join(root, name)
}

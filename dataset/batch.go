package dataset

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Batch stacks examples along a leading batch axis.
type Batch struct {
	Meta []Meta

	// Landmarks has shape (B, L, landmark_count, 3).
	Landmarks Tensor

	// Mel has shape (B, L, mel_bands, fixed_mel_width, 1).
	Mel Tensor

	// Phonemes has shape (B, L, 1).
	Phonemes IntTensor

	// Labels has shape (B, num_emotions), one-hot.
	Labels Tensor
}

// Size returns the number of examples in b.
func (b *Batch) Size() int { return len(b.Meta) }

// BatchIterator yields batches over one shuffled pass of a Meta list.
//
//	it := a.Batches(meta, 16)
//	for it.Next(ctx) {
//		b := it.Batch()
//	}
//	if err := it.Err(); err != nil { ... }
//
// After exhaustion, Reset starts a new pass with a fresh shuffle.
type BatchIterator struct {
	a    *Assembler
	meta []Meta
	size int

	order []Meta
	pos   int
	cur   *Batch
	err   error
	done  bool
}

// Batches returns an iterator over meta in batches of size examples. The
// final batch may be smaller. meta is not modified.
func (a *Assembler) Batches(meta []Meta, size int) *BatchIterator {
	it := &BatchIterator{a: a, meta: slices.Clone(meta), size: max(size, 1)}
	it.Reset()
	return it
}

// Reset reshuffles and rewinds the iterator.
func (it *BatchIterator) Reset() {
	it.order = slices.Clone(it.meta)
	it.a.shuffle(it.order)
	it.pos, it.cur, it.err, it.done = 0, nil, nil, false
}

// Exhausted reports whether the current pass has ended.
func (it *BatchIterator) Exhausted() bool { return it.done }

// Batch returns the batch produced by the last successful Next.
func (it *BatchIterator) Batch() *Batch { return it.cur }

// Err returns the error that stopped iteration, if any.
func (it *BatchIterator) Err() error { return it.err }

// Next assembles the next batch. Examples are fetched concurrently, bounded by
// the Workers setting; an example that fails to assemble is logged and left
// out of its batch. Next returns false at the end of the pass or when ctx is
// done.
func (it *BatchIterator) Next(ctx context.Context) bool {
	for !it.done {
		if err := ctx.Err(); err != nil {
			it.err, it.done, it.cur = err, true, nil
			return false
		}
		if it.pos >= len(it.order) {
			it.done, it.cur = true, nil
			return false
		}
		end := min(it.pos+it.size, len(it.order))
		chunk := it.order[it.pos:end]
		it.pos = end

		examples, err := it.a.fetchAll(ctx, chunk)
		if err != nil {
			it.err, it.done, it.cur = err, true, nil
			return false
		}
		if len(examples) == 0 {
			continue
		}
		it.cur = it.a.stack(examples)
		return true
	}
	return false
}

// fetchAll fetches chunk concurrently, keeping input order and dropping
// failures.
func (a *Assembler) fetchAll(ctx context.Context, chunk []Meta) ([]*Example, error) {
	results := make([]*Example, len(chunk))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for i, m := range chunk {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ex, err := a.Fetch(m)
			if err != nil {
				a.log.WithError(err).WithFields(logrus.Fields{"clip": m.Clip, "emotion": m.Emotion}).
					Warn("skipping example")
				return nil
			}
			results[i] = ex
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := results[:0]
	for _, ex := range results {
		if ex != nil {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (a *Assembler) stack(examples []*Example) *Batch {
	n := len(examples)
	first := examples[0]
	b := &Batch{
		Meta:      make([]Meta, 0, n),
		Landmarks: Tensor{Shape: append([]int{n}, first.Landmarks.Shape...)},
		Mel:       Tensor{Shape: append([]int{n}, first.Mel.Shape...)},
		Phonemes:  IntTensor{Shape: append([]int{n}, first.Phonemes.Shape...)},
		Labels:    Tensor{Shape: []int{n, a.cfg.NumEmotions}},
	}
	b.Landmarks.Data = make([]float32, 0, n*len(first.Landmarks.Data))
	b.Mel.Data = make([]float32, 0, n*len(first.Mel.Data))
	b.Phonemes.Data = make([]int32, 0, n*len(first.Phonemes.Data))
	b.Labels.Data = make([]float32, 0, n*a.cfg.NumEmotions)
	for _, ex := range examples {
		b.Meta = append(b.Meta, ex.Meta)
		b.Landmarks.Data = append(b.Landmarks.Data, ex.Landmarks.Data...)
		b.Mel.Data = append(b.Mel.Data, ex.Mel.Data...)
		b.Phonemes.Data = append(b.Phonemes.Data, ex.Phonemes.Data...)
		b.Labels.Data = append(b.Labels.Data, OneHot(ex.Label, a.cfg.NumEmotions)...)
	}
	return b
}

// Split shuffles a copy of meta with rng and cuts it at floor(n*(1-testFraction)).
// The two halves are disjoint and together hold every element. A nil rng
// shuffles with a random seed.
func Split(meta []Meta, testFraction float64, rng *rand.Rand) (train, test []Meta, err error) {
	if testFraction < 0 || testFraction > 1 {
		return nil, nil, fmt.Errorf("dataset: test fraction %v outside [0, 1]", testFraction)
	}
	if rng == nil {
		rng = NewRand(0)
	}
	shuffled := slices.Clone(meta)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	cut := int(float64(len(shuffled)) * (1 - testFraction))
	return shuffled[:cut:cut], shuffled[cut:], nil
}

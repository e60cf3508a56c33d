package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/codenav/internal/errs"
	"golang.org/x/sync/errgroup"
)

// BatchOptions bounds the requests a Batcher sends to its provider.
type BatchOptions struct {
	MaxBatchSize  int // texts per request
	MaxBatchChars int // total characters per request
	Concurrency   int // requests in flight
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = 64
	}
	if o.MaxBatchChars <= 0 {
		o.MaxBatchChars = 100_000
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// Batcher splits large inputs into provider-sized batches and embeds them
// concurrently. The output is the same as embedding every text on its own:
// one vector per input, in input order. Any failed batch fails the call.
type Batcher struct {
	inner Embedder
	opts  BatchOptions
}

func NewBatcher(inner Embedder, opts BatchOptions) *Batcher {
	return &Batcher{inner: inner, opts: opts.withDefaults()}
}

type batch struct {
	offset int
	texts  []string
}

func (b *Batcher) split(texts []string) []batch {
	var out []batch
	cur := batch{}
	chars := 0
	for i, t := range texts {
		if len(cur.texts) > 0 && (len(cur.texts) >= b.opts.MaxBatchSize || chars+len(t) > b.opts.MaxBatchChars) {
			out = append(out, cur)
			cur, chars = batch{offset: i}, 0
		}
		cur.texts = append(cur.texts, t)
		chars += len(t)
	}
	if len(cur.texts) > 0 {
		out = append(out, cur)
	}
	return out
}

func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	batches := b.split(texts)
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	for _, bt := range batches {
		g.Go(func() error {
			vecs, err := b.inner.Embed(gctx, bt.texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(bt.texts) {
				return fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(bt.texts))
			}
			copy(out[bt.offset:], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errs.E(errs.EmbeddingError, "embed", err)
	}

	dim := len(out[0])
	for i, v := range out {
		if len(v) == 0 || len(v) != dim {
			return nil, errs.Errorf(errs.EmbeddingError, "embed", "vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}

	log.Debug().
		Int("texts", len(texts)).
		Int("batches", len(batches)).
		Str("model", b.inner.Model()).
		Msg("embedded")
	return out, nil
}

// Dim reports the provider's configured dimension.
func (b *Batcher) Dim() int { return b.inner.Dim() }

func (b *Batcher) Model() string { return b.inner.Model() }

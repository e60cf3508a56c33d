// Package store holds the vector indexes chunks are retrieved from.
//
// Every backend ranks by descending cosine similarity with ties broken by
// insertion ordinal, so exact backends return the same hits for the same
// vectors.
package store

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/codenav/internal/errs"
)

const (
	BackendBruteForce = "bruteforce"
	BackendSQLiteVec  = "sqlitevec"
	BackendPgVector   = "pgvector"
)

// Hit is one ranked match: the insertion ordinal of a stored vector and its
// cosine similarity to the query.
type Hit struct {
	Ordinal int
	Score   float64
}

// Index answers nearest-neighbour queries over an immutable set of vectors.
type Index interface {
	// Query returns up to topK hits ranked by descending score. topK is
	// clamped to Len; topK <= 0 and an empty index yield no hits.
	Query(ctx context.Context, vec []float32, topK int) ([]Hit, error)
	Len() int
	Dim() int
	Backend() string
	// Close releases backend resources. The index must not be queried after.
	Close() error
}

// Builder creates an Index from vectors whose ordinals are their positions.
type Builder interface {
	Name() string
	Build(ctx context.Context, vectors [][]float32) (Index, error)
}

// Options selects and configures a backend.
type Options struct {
	Backend     string
	DatabaseURL string
	// HNSWThreshold is the row count from which pgvector builds an
	// approximate HNSW index. Zero disables it.
	HNSWThreshold int
}

// NewBuilder returns the builder for opts.Backend. A backend that cannot be
// reached is returned as a builder whose Build fails, so BuildWithFallback
// degrades to brute force.
func NewBuilder(ctx context.Context, opts Options) Builder {
	switch opts.Backend {
	case BackendSQLiteVec:
		return SQLiteVec{}
	case BackendPgVector:
		b, err := NewPgVector(ctx, opts.DatabaseURL, opts.HNSWThreshold)
		if err != nil {
			log.Warn().Err(errs.E(errs.IndexBuildError, "connect", err)).Str("backend", BackendPgVector).Msg("vector backend unavailable")
			return unavailable{name: BackendPgVector, err: err}
		}
		return b
	case BackendBruteForce, "":
		return BruteForce{}
	default:
		err := fmt.Errorf("unknown backend %q", opts.Backend)
		log.Warn().Err(errs.E(errs.IndexBuildError, "select", err)).Msg("vector backend unavailable")
		return unavailable{name: opts.Backend, err: err}
	}
}

// BuildWithFallback builds with b and falls back to the brute-force index
// when b fails. Inconsistent vector dimensions are an error for every
// backend and are reported instead.
func BuildWithFallback(ctx context.Context, b Builder, vectors [][]float32) (Index, error) {
	if _, err := checkDims(vectors); err != nil {
		return nil, err
	}
	if b == nil {
		return BruteForce{}.Build(ctx, vectors)
	}
	idx, err := b.Build(ctx, vectors)
	if err == nil {
		return idx, nil
	}
	log.Warn().
		Err(errs.E(errs.IndexBuildError, b.Name(), err)).
		Str("backend", b.Name()).
		Msg("falling back to brute-force index")
	return BruteForce{}.Build(ctx, vectors)
}

// CloseBuilder releases the resources a builder holds, if any.
func CloseBuilder(b Builder) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type unavailable struct {
	name string
	err  error
}

func (u unavailable) Name() string { return u.name }

func (u unavailable) Build(context.Context, [][]float32) (Index, error) {
	return nil, u.err
}

func checkDims(vectors [][]float32) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, errs.Errorf(errs.InvalidArgument, "build", "vector 0 is empty")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, errs.Errorf(errs.InvalidArgument, "build", "vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return dim, nil
}

// normalized returns v scaled to unit length and whether v was non-zero.
func normalized(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out, false
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out, true
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func clampScore(s float64) float64 {
	return math.Max(-1, math.Min(1, s))
}

// rank orders hits by score descending then ordinal ascending and keeps topK.
func rank(hits []Hit, topK int) []Hit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// prepareQuery validates a query and reports the effective topK. A zero
// effective topK means the caller returns no hits.
func prepareQuery(vec []float32, topK, n, dim int) (int, error) {
	if topK <= 0 || n == 0 {
		return 0, nil
	}
	if len(vec) != dim {
		return 0, errs.Errorf(errs.InvalidArgument, "query", "query has dimension %d, index has %d", len(vec), dim)
	}
	return min(topK, n), nil
}

// ordinalHits scores the first k ordinals 0. Every vector is equally
// similar to a zero query.
func ordinalHits(k int) []Hit {
	hits := make([]Hit, k)
	for i := range hits {
		hits[i] = Hit{Ordinal: i}
	}
	return hits
}

// withZeros merges vectors that were not stored by a backend because they
// have zero length: their cosine similarity to any query is 0.
func withZeros(hits []Hit, zeros []int, topK int) []Hit {
	for _, o := range zeros {
		hits = append(hits, Hit{Ordinal: o})
	}
	return rank(hits, topK)
}

package store

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/seanblong/codenav/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// builders returns the exact backends available in every environment, plus
// pgvector when CODENAV_TEST_DATABASE_URL points at a database.
func builders(t *testing.T) []Builder {
	t.Helper()
	bs := []Builder{BruteForce{}, SQLiteVec{}}
	if url := os.Getenv("CODENAV_TEST_DATABASE_URL"); url != "" {
		pg, err := NewPgVector(context.Background(), url, 0)
		require.NoError(t, err)
		t.Cleanup(func() { _ = pg.Close() })
		bs = append(bs, pg)
	}
	return bs
}

func randomVectors(n, dim int, seed int64) [][]float32 {
	r := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
		for j := range out[i] {
			out[i][j] = float32(r.NormFloat64())
		}
	}
	return out
}

func build(t *testing.T, b Builder, vectors [][]float32) Index {
	t.Helper()
	idx, err := b.Build(context.Background(), vectors)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestQuery_StoredVectorRanksFirst(t *testing.T) {
	vectors := randomVectors(200, 16, 1)
	for _, b := range builders(t) {
		t.Run(b.Name(), func(t *testing.T) {
			idx := build(t, b, vectors)
			for _, i := range []int{0, 57, 199} {
				hits, err := idx.Query(context.Background(), vectors[i], 3)
				require.NoError(t, err)
				require.Len(t, hits, 3)
				assert.Equal(t, i, hits[0].Ordinal)
				assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
				assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
				assert.GreaterOrEqual(t, hits[1].Score, hits[2].Score)
			}
		})
	}
}

func TestQuery_BackendsAgree(t *testing.T) {
	vectors := randomVectors(300, 8, 2)
	queries := randomVectors(10, 8, 3)

	ref := build(t, BruteForce{}, vectors)
	for _, b := range builders(t) {
		t.Run(b.Name(), func(t *testing.T) {
			idx := build(t, b, vectors)
			for _, q := range queries {
				want, err := ref.Query(context.Background(), q, 10)
				require.NoError(t, err)
				got, err := idx.Query(context.Background(), q, 10)
				require.NoError(t, err)
				require.Len(t, got, len(want))
				for i := range want {
					assert.Equal(t, want[i].Ordinal, got[i].Ordinal)
					assert.InDelta(t, want[i].Score, got[i].Score, 1e-5)
				}
			}
		})
	}
}

func TestQuery_Clamping(t *testing.T) {
	vectors := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	for _, b := range builders(t) {
		t.Run(b.Name(), func(t *testing.T) {
			idx := build(t, b, vectors)
			ctx := context.Background()

			hits, err := idx.Query(ctx, []float32{1, 0}, 10)
			require.NoError(t, err)
			assert.Len(t, hits, 3, "topK is clamped to the index size")

			for _, k := range []int{0, -1} {
				hits, err = idx.Query(ctx, []float32{1, 0}, k)
				require.NoError(t, err)
				assert.Empty(t, hits)
			}

			_, err = idx.Query(ctx, []float32{1, 0, 0}, 1)
			assert.True(t, errors.Is(err, errs.ErrInvalid))
		})
	}
}

func TestQuery_TiesBreakByOrdinal(t *testing.T) {
	vectors := [][]float32{{0, 1}, {1, 0}, {2, 0}, {1, 0}, {0, -1}}
	for _, b := range builders(t) {
		t.Run(b.Name(), func(t *testing.T) {
			idx := build(t, b, vectors)
			hits, err := idx.Query(context.Background(), []float32{3, 0}, 5)
			require.NoError(t, err)
			var ords []int
			for _, h := range hits {
				ords = append(ords, h.Ordinal)
			}
			assert.Equal(t, []int{1, 2, 3, 0, 4}, ords)
			assert.InDelta(t, -1.0, hits[4].Score, 1e-6)
		})
	}
}

func TestQuery_LargeTieKeepsLowestOrdinals(t *testing.T) {
	// more identical vectors than a KNN backend fetches for topK
	vectors := make([][]float32, 40)
	for i := range vectors {
		vectors[i] = []float32{1, 0, 0}
	}
	vectors[7] = []float32{0, 1, 0}

	for _, b := range builders(t) {
		t.Run(b.Name(), func(t *testing.T) {
			idx := build(t, b, vectors)
			hits, err := idx.Query(context.Background(), []float32{2, 0, 0}, 3)
			require.NoError(t, err)
			assert.Equal(t, []Hit{{0, 1}, {1, 1}, {2, 1}}, roundHits(hits))

			hits, err = idx.Query(context.Background(), []float32{1, 0, 0}, 10)
			require.NoError(t, err)
			var ords []int
			for _, h := range hits {
				ords = append(ords, h.Ordinal)
			}
			assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 8, 9, 10}, ords)
		})
	}
}

func TestTiedPastFetch(t *testing.T) {
	tests := []struct {
		name      string
		hits      []Hit
		k         int
		truncated bool
		expected  bool
	}{
		{"complete result", []Hit{{3, 1}, {4, 1}}, 1, false, false},
		{"boundary strictly above the rest", []Hit{{3, 0.9}, {4, 0.5}, {5, 0.2}}, 2, true, false},
		{"last candidate ties the k-th hit", []Hit{{3, 0.9}, {4, 0.5}, {5, 0.5}}, 2, true, true},
		{"whole fetch tied", []Hit{{31, 1}, {30, 1}, {29, 1}}, 1, true, true},
		{"no hits", nil, 1, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tiedPastFetch(tt.hits, tt.k, tt.truncated))
		})
	}
}

func TestQuery_ZeroVectors(t *testing.T) {
	vectors := [][]float32{{0, 0}, {1, 0}, {-1, 0}}
	for _, b := range builders(t) {
		t.Run(b.Name(), func(t *testing.T) {
			idx := build(t, b, vectors)

			hits, err := idx.Query(context.Background(), []float32{1, 0}, 3)
			require.NoError(t, err)
			require.Len(t, hits, 3)
			assert.Equal(t, []Hit{{1, 1}, {0, 0}, {2, -1}}, roundHits(hits))

			hits, err = idx.Query(context.Background(), []float32{0, 0}, 2)
			require.NoError(t, err)
			assert.Equal(t, []Hit{{0, 0}, {1, 0}}, roundHits(hits))
		})
	}
}

func roundHits(hits []Hit) []Hit {
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = Hit{Ordinal: h.Ordinal, Score: float64(int(h.Score*1e4+0.5*sign(h.Score))) / 1e4}
	}
	return out
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

func TestEmptyIndex(t *testing.T) {
	for _, b := range builders(t) {
		t.Run(b.Name(), func(t *testing.T) {
			idx := build(t, b, nil)
			assert.Equal(t, 0, idx.Len())
			hits, err := idx.Query(context.Background(), []float32{1, 2, 3}, 5)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestBuild_RejectsMixedDimensions(t *testing.T) {
	_, err := BuildWithFallback(context.Background(), SQLiteVec{}, [][]float32{{1, 2}, {1, 2, 3}})
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}

type failingBuilder struct{}

func (failingBuilder) Name() string { return "broken" }

func (failingBuilder) Build(context.Context, [][]float32) (Index, error) {
	return nil, errors.New("extension missing")
}

func TestBuildWithFallback(t *testing.T) {
	vectors := [][]float32{{1, 0}, {0, 1}}

	idx, err := BuildWithFallback(context.Background(), failingBuilder{}, vectors)
	require.NoError(t, err)
	assert.Equal(t, BackendBruteForce, idx.Backend())
	assert.Equal(t, 2, idx.Len())

	idx, err = BuildWithFallback(context.Background(), SQLiteVec{}, vectors)
	require.NoError(t, err)
	defer idx.Close()
	assert.Equal(t, BackendSQLiteVec, idx.Backend())
}

func TestNewBuilder(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, BackendBruteForce, NewBuilder(ctx, Options{}).Name())
	assert.Equal(t, BackendSQLiteVec, NewBuilder(ctx, Options{Backend: BackendSQLiteVec}).Name())

	b := NewBuilder(ctx, Options{Backend: BackendPgVector})
	_, err := b.Build(ctx, [][]float32{{1}})
	assert.Error(t, err, "pgvector without a database URL cannot build")

	idx, err := BuildWithFallback(ctx, NewBuilder(ctx, Options{Backend: "faiss"}), [][]float32{{1}})
	require.NoError(t, err)
	assert.Equal(t, BackendBruteForce, idx.Backend())
}

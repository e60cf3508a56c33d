package store

import "context"

// BruteForce builds an exact in-memory index scanned linearly on each query.
type BruteForce struct{}

func (BruteForce) Name() string { return BackendBruteForce }

func (BruteForce) Build(ctx context.Context, vectors [][]float32) (Index, error) {
	dim, err := checkDims(vectors)
	if err != nil {
		return nil, err
	}
	idx := &bruteIndex{dim: dim, vecs: make([][]float32, len(vectors))}
	for i, v := range vectors {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		idx.vecs[i], _ = normalized(v)
	}
	return idx, nil
}

type bruteIndex struct {
	dim  int
	vecs [][]float32
}

func (b *bruteIndex) Query(_ context.Context, vec []float32, topK int) ([]Hit, error) {
	k, err := prepareQuery(vec, topK, len(b.vecs), b.dim)
	if err != nil || k == 0 {
		return nil, err
	}
	q, _ := normalized(vec)
	return scan(b.vecs, q, k), nil
}

// scan scores every vector against the unit query q.
func scan(vecs [][]float32, q []float32, k int) []Hit {
	hits := make([]Hit, len(vecs))
	for i, v := range vecs {
		hits[i] = Hit{Ordinal: i, Score: clampScore(dot(q, v))}
	}
	return rank(hits, k)
}

func (b *bruteIndex) Len() int        { return len(b.vecs) }
func (b *bruteIndex) Dim() int        { return b.dim }
func (b *bruteIndex) Backend() string { return BackendBruteForce }
func (b *bruteIndex) Close() error    { return nil }

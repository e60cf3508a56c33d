package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"slices"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// maxKNN is the largest k a vec0 KNN query accepts.
const maxKNN = 4096

// knnSlack widens the KNN candidate set so that float32 distance rounding
// in sqlite-vec does not change which near-tied vectors make the cut.
const knnSlack = 8

// SQLiteVec builds a private in-memory SQLite database per index and runs
// exact KNN through a sqlite-vec vec0 table. Candidates are rescored in Go
// so ranking matches the brute-force index.
type SQLiteVec struct{}

func (SQLiteVec) Name() string { return BackendSQLiteVec }

func (SQLiteVec) Build(ctx context.Context, vectors [][]float32) (Index, error) {
	dim, err := checkDims(vectors)
	if err != nil {
		return nil, err
	}
	idx := &sqliteIndex{dim: dim, vecs: make([][]float32, len(vectors))}
	if len(vectors) == 0 {
		return idx, nil
	}

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// each connection to :memory: is its own database
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, fmt.Sprintf(
		`CREATE VIRTUAL TABLE vectors USING vec0(ordinal INTEGER PRIMARY KEY, embedding float[%d])`, dim)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create vec0 table: %w", err)
	}
	if err := idx.insert(ctx, db, vectors); err != nil {
		_ = db.Close()
		return nil, err
	}
	idx.db = db
	return idx, nil
}

type sqliteIndex struct {
	db    *sql.DB
	dim   int
	vecs  [][]float32
	zeros []int
}

func (s *sqliteIndex) insert(ctx context.Context, db *sql.DB, vectors [][]float32) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO vectors (ordinal, embedding) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, v := range vectors {
		unit, ok := normalized(v)
		s.vecs[i] = unit
		if !ok {
			s.zeros = append(s.zeros, i)
			continue
		}
		blob, err := sqlite_vec.SerializeFloat32(unit)
		if err != nil {
			return fmt.Errorf("serialize vector %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, i, blob); err != nil {
			return fmt.Errorf("insert vector %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteIndex) Query(ctx context.Context, vec []float32, topK int) ([]Hit, error) {
	k, err := prepareQuery(vec, topK, len(s.vecs), s.dim)
	if err != nil || k == 0 {
		return nil, err
	}
	q, ok := normalized(vec)
	if !ok {
		return ordinalHits(k), nil
	}

	stored := len(s.vecs) - len(s.zeros)
	fetch := min(k+knnSlack, stored)
	if fetch > maxKNN {
		return scan(s.vecs, q, k), nil
	}
	if fetch == 0 {
		return withZeros(nil, s.zeros, k), nil
	}

	blob, err := sqlite_vec.SerializeFloat32(q)
	if err != nil {
		return nil, fmt.Errorf("serialize query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ordinal
		FROM vectors
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance`, blob, fetch)
	if err != nil {
		return nil, fmt.Errorf("knn query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var ord int
		if err := rows.Scan(&ord); err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Ordinal: ord, Score: clampScore(dot(q, s.vecs[ord]))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if tiedPastFetch(hits, k, fetch < stored) {
		return scan(s.vecs, q, k), nil
	}
	return withZeros(hits, s.zeros, k), nil
}

// tieEpsilon absorbs the float32 rounding between sqlite-vec distances and
// the scores recomputed in Go.
const tieEpsilon = 1e-6

// tiedPastFetch reports whether vectors left out of a truncated KNN result
// may score as high as the k-th hit. sqlite-vec orders equal distances
// arbitrarily, so the lowest ordinals of a tie can be among those left out.
func tiedPastFetch(hits []Hit, k int, truncated bool) bool {
	if !truncated || len(hits) == 0 {
		return false
	}
	worst := hits[0].Score
	for _, h := range hits[1:] {
		worst = math.Min(worst, h.Score)
	}
	ranked := rank(slices.Clone(hits), k)
	return worst >= ranked[len(ranked)-1].Score-tieEpsilon
}

func (s *sqliteIndex) Len() int        { return len(s.vecs) }
func (s *sqliteIndex) Dim() int        { return s.dim }
func (s *sqliteIndex) Backend() string { return BackendSQLiteVec }

func (s *sqliteIndex) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
)

// PgVector stores each index in its own Postgres table using the pgvector
// extension. The table is dropped when the index is closed.
type PgVector struct {
	pool          *pgxpool.Pool
	hnswThreshold int
}

// NewPgVector connects to the database at url and checks connectivity.
func NewPgVector(ctx context.Context, url string, hnswThreshold int) (*PgVector, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b := &PgVector{pool: p, hnswThreshold: hnswThreshold}
	if err := b.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return b, nil
}

func (b *PgVector) Name() string { return BackendPgVector }

// Close closes the connection pool.
func (b *PgVector) Close() error {
	b.pool.Close()
	return nil
}

// Ping checks the database connectivity.
func (b *PgVector) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return b.pool.Ping(ctx)
}

func (b *PgVector) Build(ctx context.Context, vectors [][]float32) (Index, error) {
	dim, err := checkDims(vectors)
	if err != nil {
		return nil, err
	}
	idx := &pgIndex{
		pool:  b.pool,
		table: pgx.Identifier{"codenav_vectors_" + strings.ReplaceAll(uuid.NewString(), "-", "")}.Sanitize(),
		dim:   dim,
		n:     len(vectors),
	}
	if len(vectors) == 0 {
		return idx, nil
	}

	if err := idx.migrate(ctx, len(vectors) >= b.hnswThreshold && b.hnswThreshold > 0); err != nil {
		return nil, err
	}
	if err := idx.insert(ctx, vectors); err != nil {
		_ = idx.Close()
		return nil, err
	}
	log.Debug().Str("table", idx.table).Int("rows", len(vectors)).Msg("pgvector index built")
	return idx, nil
}

type pgIndex struct {
	pool  *pgxpool.Pool
	table string
	dim   int
	n     int
	zeros []int
	ready bool
}

// migrate creates the index table and, for large indexes, an HNSW index.
// HNSW search is approximate: recall is traded for query latency.
func (p *pgIndex) migrate(ctx context.Context, hnsw bool) error {
	q := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE %s (
  ordinal   INT PRIMARY KEY,
  embedding vector(%d) NOT NULL
);
`, p.table, p.dim)
	if hnsw {
		q += fmt.Sprintf("\nCREATE INDEX ON %s USING hnsw (embedding vector_cosine_ops);\n", p.table)
	}
	if _, err := p.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	p.ready = true
	return nil
}

func (p *pgIndex) insert(ctx context.Context, vectors [][]float32) error {
	batch := &pgx.Batch{}
	ins := fmt.Sprintf("INSERT INTO %s (ordinal, embedding) VALUES ($1, $2)", p.table)
	for i, v := range vectors {
		unit, ok := normalized(v)
		if !ok {
			p.zeros = append(p.zeros, i)
			continue
		}
		batch.Queue(ins, i, pgvector.NewVector(unit))
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert vectors: %w", err)
	}
	return nil
}

func (p *pgIndex) Query(ctx context.Context, vec []float32, topK int) ([]Hit, error) {
	k, err := prepareQuery(vec, topK, p.n, p.dim)
	if err != nil || k == 0 {
		return nil, err
	}
	q, ok := normalized(vec)
	if !ok {
		return ordinalHits(k), nil
	}

	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
SELECT ordinal, 1 - (embedding <=> $1) AS score
FROM %s
ORDER BY embedding <=> $1, ordinal
LIMIT %d`, p.table, k), pgvector.NewVector(q))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Ordinal, &h.Score); err != nil {
			return nil, err
		}
		h.Score = clampScore(h.Score)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return withZeros(hits, p.zeros, k), nil
}

func (p *pgIndex) Len() int        { return p.n }
func (p *pgIndex) Dim() int        { return p.dim }
func (p *pgIndex) Backend() string { return BackendPgVector }

// Close drops the index table. The pool belongs to the builder.
func (p *pgIndex) Close() error {
	if !p.ready {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := p.pool.Exec(ctx, "DROP TABLE IF EXISTS "+p.table)
	return err
}

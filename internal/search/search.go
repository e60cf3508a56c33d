package search

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/codenav/internal/ai"
	"github.com/seanblong/codenav/internal/errs"
	"github.com/seanblong/codenav/internal/repostate"
	"github.com/seanblong/codenav/pkg/models"
)

// DefaultMaxContextChars bounds the compressed context placed in a prompt.
const DefaultMaxContextChars = 6000

type Options struct {
	MaxContextChars int
	// Templates overrides the built-in prompt templates per level.
	Templates Templates
}

type Service struct {
	Embedder        ai.Embedder
	State           *repostate.State
	Templates       Templates
	MaxContextChars int
}

// NewService creates a new retrieval service over the given repository state
func NewService(emb ai.Embedder, state *repostate.State, opts Options) *Service {
	maxChars := opts.MaxContextChars
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}
	return &Service{
		Embedder:        emb,
		State:           state,
		Templates:       DefaultTemplates().Merge(opts.Templates),
		MaxContextChars: maxChars,
	}
}

// Answer retrieves the topK chunks most similar to question and builds the
// explanation prompt for level from their compressed text. It fails with
// EmptyIndexError before the first ingestion and EmbeddingError when the
// question cannot be embedded. topK <= 0 skips retrieval entirely.
func (s *Service) Answer(ctx context.Context, question string, level models.Level, topK int) (models.Answer, error) {
	question = strings.TrimSpace(question)
	if s.State.Current() == nil {
		return models.Answer{}, errs.E(errs.EmptyIndexError, "query", nil)
	}

	var vec []float32
	if topK > 0 {
		vecs, err := s.Embedder.Embed(ctx, []string{question})
		if err != nil {
			log.Error().Err(err).Str("question", question).Msg("query embedding failed")
			if errs.KindOf(err) != errs.EmbeddingError {
				err = errs.E(errs.EmbeddingError, "embed query", err)
			}
			return models.Answer{}, err
		}
		if len(vecs) != 1 {
			return models.Answer{}, errs.Errorf(errs.EmbeddingError, "embed query", "expected 1 embedding, got %d", len(vecs))
		}
		vec = vecs[0]
	}

	results := []models.RetrievalResult{}
	var epoch string
	err := s.State.View(func(snap *repostate.Snapshot) error {
		epoch = snap.Epoch
		if topK <= 0 {
			return nil
		}
		hits, err := snap.Index.Query(ctx, vec, topK)
		if err != nil {
			return err
		}
		for _, h := range hits {
			c := snap.Chunks[h.Ordinal]
			results = append(results, models.RetrievalResult{ChunkID: c.ID, Score: h.Score, Chunk: c})
		}
		return nil
	})
	if err != nil {
		return models.Answer{}, err
	}

	compressed := Compress(results, s.MaxContextChars)
	prompt := s.Templates.Render(level, question, compressed)
	log.Debug().
		Str("epoch", epoch).
		Str("level", string(level)).
		Int("top_k", topK).
		Int("results", len(results)).
		Int("context_chars", len(compressed)).
		Msg("query answered")
	return models.Answer{Results: results, Prompt: prompt, Context: compressed}, nil
}

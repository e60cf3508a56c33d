// Package navigator is the entry point shared by the HTTP API, the CLI and
// the MCP server. It owns the repository state and exposes ingestion,
// retrieval, impact analysis and status over it.
package navigator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/codenav/internal/ai"
	"github.com/seanblong/codenav/internal/chunker"
	"github.com/seanblong/codenav/internal/config"
	"github.com/seanblong/codenav/internal/errs"
	"github.com/seanblong/codenav/internal/impact"
	"github.com/seanblong/codenav/internal/indexer"
	"github.com/seanblong/codenav/internal/repostate"
	"github.com/seanblong/codenav/internal/search"
	"github.com/seanblong/codenav/internal/store"
	"github.com/seanblong/codenav/pkg/models"
)

type Navigator struct {
	state   *repostate.State
	indexer *indexer.Indexer
	search  *search.Service
}

func New(state *repostate.State, ix *indexer.Indexer, svc *search.Service) *Navigator {
	return &Navigator{state: state, indexer: ix, search: svc}
}

// FromConfig wires the embedding provider, vector backend, chunker and
// retrieval service described by cfg.
func FromConfig(ctx context.Context, cfg config.Specification) (*Navigator, error) {
	client, err := ai.NewClient(ctx, &ai.ClientConfig{
		Provider:   ai.Provider(cfg.Provider),
		APIKey:     cfg.APIKey,
		EmbedModel: cfg.EmbedModel,
		Dim:        cfg.Dim,
		BaseURL:    cfg.ProviderURL,
		ProjectID:  cfg.ProjectID,
		Location:   cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}
	emb := ai.NewBatcher(client, ai.BatchOptions{
		MaxBatchSize:  cfg.BatchSize,
		MaxBatchChars: cfg.BatchMaxChars,
		Concurrency:   cfg.EmbedConcurrency,
	})

	var templates search.Templates
	if cfg.TemplatesFile != "" {
		if templates, err = search.LoadTemplates(cfg.TemplatesFile); err != nil {
			return nil, err
		}
	}

	builder := store.NewBuilder(ctx, store.Options{
		Backend:       cfg.IndexBackend,
		DatabaseURL:   cfg.Database,
		HNSWThreshold: cfg.HNSWThreshold,
	})
	ix := indexer.New(
		&indexer.GitFetcher{Token: cfg.GithubToken},
		chunker.New(chunker.Options{WindowLines: cfg.WindowLines}),
		emb,
		builder,
		indexer.Options{Extensions: cfg.Extensions, MaxFileBytes: cfg.MaxFileBytes, Ref: cfg.GitRef},
	)
	state := repostate.New()
	svc := search.NewService(emb, state, search.Options{MaxContextChars: cfg.MaxContextChars, Templates: templates})

	log.Info().
		Str("provider", cfg.Provider).
		Str("model", emb.Model()).
		Str("backend", builder.Name()).
		Msg("navigator ready")
	return New(state, ix, svc), nil
}

// Ingest replaces the current repository with repo, a local directory or a
// git URL. The pipeline runs to completion even when ctx is cancelled, so a
// caller that goes away never leaves a half-built snapshot behind. It fails
// with CloneError or EmbeddingError and then keeps the previous snapshot.
func (n *Navigator) Ingest(ctx context.Context, repo string) (models.IngestResult, error) {
	return n.IngestRef(ctx, repo, "")
}

// IngestRef is Ingest for a specific branch or tag of a remote repository.
func (n *Navigator) IngestRef(ctx context.Context, repo, ref string) (models.IngestResult, error) {
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return models.IngestResult{}, errs.Errorf(errs.InvalidArgument, "ingest", "repository is required")
	}
	ctx = context.WithoutCancel(ctx)
	epoch := uuid.NewString()
	start := time.Now()
	log.Info().Str("epoch", epoch).Str("repository", repo).Str("ref", ref).Msg("ingestion started")

	snap, err := n.state.Ingest(ctx, func(ctx context.Context) (*repostate.Snapshot, error) {
		res, err := n.indexer.RunRef(ctx, repo, strings.TrimSpace(ref))
		if err != nil {
			return nil, err
		}
		return &repostate.Snapshot{
			Epoch:      epoch,
			Repository: res.Repository,
			Files:      res.Files,
			Chunks:     res.Chunks,
			Index:      res.Index,
		}, nil
	})
	if err != nil {
		log.Error().Err(err).Str("epoch", epoch).Str("repository", repo).Msg("ingestion failed")
		return models.IngestResult{}, err
	}

	return models.IngestResult{
		Epoch:         snap.Epoch,
		Repository:    snap.Repository,
		IngestedFiles: len(snap.Files),
		Chunks:        len(snap.Chunks),
		Dim:           snap.Index.Dim(),
		Backend:       snap.Backend(),
		Duration:      time.Since(start),
	}, nil
}

// Query answers question from the current repository. It fails with
// EmptyIndexError before the first ingestion.
func (n *Navigator) Query(ctx context.Context, question string, level models.Level, topK int) (models.Answer, error) {
	return n.search.Answer(ctx, question, level, topK)
}

// Impact reports where name is defined and used. It never fails: an unknown
// name or a missing repository yields an empty report.
func (n *Navigator) Impact(name string) models.ImpactReport {
	var report models.ImpactReport
	err := n.state.View(func(snap *repostate.Snapshot) error {
		report = impact.Analyze(snap.Chunks, name)
		return nil
	})
	if err != nil {
		return impact.Analyze(nil, name)
	}
	return report
}

func (n *Navigator) Status() models.Status {
	snap := n.state.Current()
	if snap == nil {
		return models.Status{}
	}
	return models.Status{
		Ingested:   true,
		Epoch:      snap.Epoch,
		Repository: snap.Repository,
		Files:      len(snap.Files),
		Chunks:     len(snap.Chunks),
		Backend:    snap.Backend(),
		CreatedAt:  snap.CreatedAt,
	}
}

// Close retires the current snapshot and releases the vector backend.
func (n *Navigator) Close() error {
	n.state.Close()
	if n.indexer != nil {
		return store.CloseBuilder(n.indexer.Builder)
	}
	return nil
}

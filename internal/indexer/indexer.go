package indexer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/codenav/internal/ai"
	"github.com/seanblong/codenav/internal/chunker"
	"github.com/seanblong/codenav/internal/errs"
	"github.com/seanblong/codenav/internal/store"
	"github.com/seanblong/codenav/pkg/models"
)

// DefaultExtensions are the file extensions ingested when none are configured.
var DefaultExtensions = []string{".py", ".java", ".js"}

// DefaultMaxFileBytes bounds the size of an ingested file.
const DefaultMaxFileBytes = 1 << 20

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Options configures what is ingested.
type Options struct {
	Extensions   []string
	MaxFileBytes int64
	Ref          string
	Workers      int
}

// Indexer runs the ingestion pipeline: fetch, scan, chunk, embed and build.
type Indexer struct {
	Fetcher    Fetcher
	Walker     FileSystemWalker
	FileReader FileReader
	Chunker    *chunker.Chunker
	Embedder   ai.Embedder
	Builder    store.Builder
	Options    Options
}

// New creates an Indexer with the default filesystem dependencies.
func New(fetcher Fetcher, ch *chunker.Chunker, emb ai.Embedder, b store.Builder, opts Options) *Indexer {
	return &Indexer{
		Fetcher:    fetcher,
		Walker:     &DefaultFileSystemWalker{},
		FileReader: &DefaultFileReader{},
		Chunker:    ch,
		Embedder:   emb,
		Builder:    b,
		Options:    opts,
	}
}

// Result is everything one pipeline run produced.
type Result struct {
	Repository string
	Files      []models.SourceFile
	Chunks     []models.Chunk
	// Index holds the vector of Chunks[i] at ordinal i.
	Index    store.Index
	Duration time.Duration
}

// Run ingests repo at the configured ref. It fails with CloneError when the
// repository cannot be fetched and EmbeddingError when embedding fails;
// nothing is returned in either case.
func (ix *Indexer) Run(ctx context.Context, repo string) (*Result, error) {
	return ix.RunRef(ctx, repo, "")
}

// RunRef is Run for a specific branch or tag. An empty ref falls back to
// the configured one.
func (ix *Indexer) RunRef(ctx context.Context, repo, ref string) (*Result, error) {
	start := time.Now()
	if ref == "" {
		ref = ix.Options.Ref
	}

	dir, cleanup, err := ix.Fetcher.Fetch(ctx, repo, ref)
	if err != nil {
		if errs.KindOf(err) == "" {
			err = errs.E(errs.CloneError, "fetch", err)
		}
		return nil, err
	}
	defer cleanup()

	files, err := ix.Scan(ctx, dir)
	if err != nil {
		return nil, err
	}
	chunks := ix.chunkAll(ctx, files)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := ix.Embedder.Embed(ctx, texts)
	if err != nil {
		if errs.KindOf(err) != errs.EmbeddingError {
			err = errs.E(errs.EmbeddingError, "embed", err)
		}
		return nil, err
	}

	idx, err := store.BuildWithFallback(ctx, ix.Builder, vecs)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Repository: repo,
		Files:      files,
		Chunks:     chunks,
		Index:      idx,
		Duration:   time.Since(start),
	}
	log.Info().
		Str("repository", repo).
		Int("files", len(files)).
		Int("chunks", len(chunks)).
		Str("backend", idx.Backend()).
		Dur("duration", res.Duration).
		Msg("ingestion complete")
	return res, nil
}

// Scan reads the source files under root in sorted path order. Paths in the
// result are relative to root and slash-separated.
func (ix *Indexer) Scan(ctx context.Context, root string) ([]models.SourceFile, error) {
	exts := map[string]bool{}
	for _, e := range ix.extensions() {
		exts[strings.ToLower(e)] = true
	}
	maxBytes := ix.Options.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}

	var files []models.SourceFile
	err := ix.Walker.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			relPath := filepath.ToSlash(rel(root, path))
			// de is nil when walked by a test double
			if de != nil && de.IsDir() {
				if relPath != "." && shouldSkip("/"+relPath+"/") {
					return godirwalk.SkipThis
				}
				return nil
			}
			if shouldSkip("/"+relPath) || !exts[strings.ToLower(filepath.Ext(path))] {
				return nil
			}

			b, err := ix.FileReader.ReadFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", relPath).Msg("failed to read file")
				return nil
			}
			if int64(len(b)) > maxBytes {
				log.Debug().Str("path", relPath).Int("bytes", len(b)).Msg("skipping large file")
				return nil
			}
			if bytes.IndexByte(b, 0) >= 0 {
				log.Debug().Str("path", relPath).Msg("skipping binary file")
				return nil
			}

			files = append(files, models.SourceFile{
				Path:     relPath,
				Language: chunker.LanguageForPath(relPath),
				Text:     string(b),
			})
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (ix *Indexer) extensions() []string {
	if len(ix.Options.Extensions) > 0 {
		return ix.Options.Extensions
	}
	return DefaultExtensions
}

func (ix *Indexer) workers() int {
	if ix.Options.Workers > 0 {
		return ix.Options.Workers
	}
	numWorkers := runtime.NumCPU()
	if numWorkers > 8 {
		numWorkers = 8
	}
	return numWorkers
}

// chunkAll chunks files on a worker pool and returns the chunks in file
// order.
func (ix *Indexer) chunkAll(ctx context.Context, files []models.SourceFile) []models.Chunk {
	numWorkers := ix.workers()
	log.Debug().Int("workers", numWorkers).Int("files", len(files)).Msg("chunking")

	perFile := make([][]models.Chunk, len(files))
	workChan := make(chan int, numWorkers*2)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workChan {
				perFile[i] = ix.Chunker.Chunk(ctx, files[i])
			}
		}()
	}
	for i := range files {
		workChan <- i
	}
	close(workChan)
	wg.Wait()

	var out []models.Chunk
	for _, cs := range perFile {
		out = append(out, cs...)
	}
	return out
}

// shouldSkip returns true if the file at path should be skipped.
func shouldSkip(path string) bool {
	p := strings.ToLower(path)
	for _, dir := range []string{
		"/vendor/", "/.git/", "/.terraform/", "/node_modules/", "/target/",
		"/build/", "/dist/", "/out/", "/bin/", "/obj/", "/.venv/", "/venv/",
		"/__pycache__/", "/.pytest_cache/", "/.gradle/", "/.m2/", "/.idea/",
		"/coverage/", "/.cache/",
	} {
		if strings.Contains(p, dir) {
			return true
		}
	}
	switch filepath.Ext(p) {
	case ".png", ".jpg", ".jpeg", ".gif", ".pdf", ".webp", ".lock", ".zip", ".svg", ".exe", ".dll":
		return true
	}
	return strings.HasSuffix(p, ".min.js")
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return r
}

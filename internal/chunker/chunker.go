// Package chunker splits source files into retrieval units.
//
// Each file is run through a per-language chain of strategies,
// structural (tree-sitter) then heuristic (declaration patterns), and falls
// back to fixed-size line windows when neither finds a boundary. Only
// top-level declarations become chunks; nested definitions stay inside the
// text of their enclosing chunk. Lines outside any declaration are covered
// by module-fallback chunks, so the chunks of a file always partition its
// lines.
package chunker

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/codenav/internal/errs"
	"github.com/seanblong/codenav/pkg/models"
)

// DefaultWindowLines is the fallback window size.
const DefaultWindowLines = 50

// Span is a 1-based inclusive line range found by a Strategy.
type Span struct {
	Start, End int
	Kind       models.ChunkKind
	Symbol     string
}

// Strategy finds top-level declaration spans in a file. Returning no spans
// and no error means the strategy found no boundary; an error means it
// failed. Either way the next strategy in the chain is tried.
type Strategy interface {
	Name() string
	Spans(ctx context.Context, file models.SourceFile, lines []string) ([]Span, error)
}

// Options configures a Chunker. WindowLines is the size of fallback
// windows; zero means DefaultWindowLines.
type Options struct {
	WindowLines int
}

// Chunker selects a strategy chain by language tag.
type Chunker struct {
	windowLines int
	chains      map[string][]Strategy
	fallback    []Strategy
}

// New creates a Chunker with tree-sitter chains for python, java and
// javascript and a heuristic chain for everything else.
func New(opts Options) *Chunker {
	if opts.WindowLines <= 0 {
		opts.WindowLines = DefaultWindowLines
	}
	st, hs := Structural{}, Heuristic{}
	return &Chunker{
		windowLines: opts.WindowLines,
		chains: map[string][]Strategy{
			LangPython:     {st, hs},
			LangJava:       {st, hs},
			LangJavaScript: {st, hs},
		},
		fallback: []Strategy{hs},
	}
}

// WithChain overrides the strategy chain for one language.
func (c *Chunker) WithChain(lang string, chain ...Strategy) *Chunker {
	c.chains[lang] = chain
	return c
}

func (c *Chunker) chainFor(lang string) []Strategy {
	if ch, ok := c.chains[lang]; ok {
		return ch
	}
	return c.fallback
}

// Chunk returns the ordered chunks of file. It never fails: strategy errors
// are logged as degraded and the chain moves on to the next strategy.
func (c *Chunker) Chunk(ctx context.Context, file models.SourceFile) []models.Chunk {
	if strings.TrimSpace(file.Text) == "" {
		return nil
	}
	lines := SplitLines(file.Text)

	for _, s := range c.chainFor(file.Language) {
		spans, err := s.Spans(ctx, file, lines)
		if err != nil {
			log.Warn().Err(errs.E(errs.ChunkDegraded, s.Name(), err)).
				Str("path", file.Path).
				Str("strategy", s.Name()).
				Msg("chunking degraded")
			continue
		}
		spans = normalize(spans, len(lines))
		if len(spans) == 0 {
			continue
		}
		return c.assemble(file, lines, spans)
	}

	log.Debug().Str("path", file.Path).Msg("no declarations found, using line windows")
	return c.windows(file, lines, 1, len(lines), nil)
}

// assemble turns declaration spans into a full partition of the file.
// Whitespace-only gaps join the neighbouring chunk; other gaps become
// module-fallback windows.
func (c *Chunker) assemble(file models.SourceFile, lines []string, spans []Span) []models.Chunk {
	var out []models.Chunk
	leading := 0 // first line of a blank prefix waiting for the next chunk

	gap := func(a, b int) {
		if a > b {
			return
		}
		if blank(lines[a-1 : b]) {
			if len(out) > 0 {
				out[len(out)-1] = withRange(out[len(out)-1], lines, out[len(out)-1].StartLine, b)
			} else {
				leading = a
			}
			return
		}
		out = c.windows(file, lines, a, b, out)
	}

	cursor := 1
	for _, sp := range spans {
		gap(cursor, sp.Start-1)
		start := sp.Start
		if leading > 0 {
			start, leading = leading, 0
		}
		out = append(out, newChunk(file, lines, start, sp.End, sp.Kind, sp.Symbol))
		cursor = sp.End + 1
	}
	gap(cursor, len(lines))
	return out
}

// windows appends module-fallback chunks of windowLines lines covering
// lines [a, b].
func (c *Chunker) windows(file models.SourceFile, lines []string, a, b int, out []models.Chunk) []models.Chunk {
	for start := a; start <= b; start += c.windowLines {
		end := min(start+c.windowLines-1, b)
		out = append(out, newChunk(file, lines, start, end, models.KindModuleFallback, ""))
	}
	return out
}

func newChunk(file models.SourceFile, lines []string, start, end int, kind models.ChunkKind, symbol string) models.Chunk {
	return withRange(models.Chunk{
		ID:       ChunkID(file.Path, start),
		Path:     file.Path,
		Language: file.Language,
		Kind:     kind,
		Symbol:   symbol,
	}, lines, start, end)
}

func withRange(ch models.Chunk, lines []string, start, end int) models.Chunk {
	ch.StartLine, ch.EndLine = start, end
	ch.Text = strings.Join(lines[start-1:end], "\n")
	return ch
}

// normalize clips spans to the file, orders them and drops any span that
// overlaps an earlier one.
func normalize(spans []Span, n int) []Span {
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	out := spans[:0]
	last := 0
	for _, sp := range spans {
		sp.Start = max(sp.Start, 1)
		sp.End = min(sp.End, n)
		if sp.Start > sp.End || sp.Start <= last {
			continue
		}
		out = append(out, sp)
		last = sp.End
	}
	return out
}

func blank(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

// SplitLines splits text into lines without their terminators. A trailing
// newline does not produce an extra empty line.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// ChunkID derives the stable chunk identifier from path and start line.
func ChunkID(path string, startLine int) string {
	h := sha1.Sum([]byte(path + "#" + strconv.Itoa(startLine)))
	return hex.EncodeToString(h[:])
}

package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog"
	"github.com/seanblong/codenav/internal/ai"
	"github.com/seanblong/codenav/internal/chunker"
	"github.com/seanblong/codenav/internal/errs"
	"github.com/seanblong/codenav/internal/store"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// MockFetcher implements Fetcher for testing
type MockFetcher struct {
	FetchFunc func(ctx context.Context, repo, ref string) (string, func(), error)
	cleaned   bool
}

func (m *MockFetcher) Fetch(ctx context.Context, repo, ref string) (string, func(), error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, repo, ref)
	}
	return "/test/repo", func() { m.cleaned = true }, nil
}

// MockEmbedder implements ai.Embedder for testing
type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)
	calls     int
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{float32(i + 1), 1}
	}
	return out, nil
}

func (m *MockEmbedder) Dim() int      { return 2 }
func (m *MockEmbedder) Model() string { return "mock" }

// MockFileSystemWalker implements FileSystemWalker for testing. It calls
// the callback with a nil Dirent for every file, in sorted order.
type MockFileSystemWalker struct {
	FilesToProcess []string
	WalkError      error
}

func (m *MockFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	if m.WalkError != nil {
		return m.WalkError
	}
	paths := append([]string(nil), m.FilesToProcess...)
	sort.Strings(paths)
	for _, p := range paths {
		if err := options.Callback(p, nil); err != nil {
			return err
		}
	}
	return nil
}

// MockFileReader implements FileReader for testing
type MockFileReader struct {
	ReadFileFunc func(filename string) ([]byte, error)
	Files        map[string]string // path -> content
}

func (m *MockFileReader) ReadFile(filename string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(filename)
	}
	if content, exists := m.Files[filename]; exists {
		return []byte(content), nil
	}
	return nil, errors.New("file not found")
}

func newTestIndexer(files map[string]string, emb ai.Embedder) (*Indexer, *MockFetcher) {
	walker := &MockFileSystemWalker{}
	for p := range files {
		walker.FilesToProcess = append(walker.FilesToProcess, p)
	}
	fetcher := &MockFetcher{}
	ix := &Indexer{
		Fetcher:    fetcher,
		Walker:     walker,
		FileReader: &MockFileReader{Files: files},
		Chunker:    chunker.New(chunker.Options{}),
		Embedder:   emb,
		Builder:    store.BruteForce{},
	}
	return ix, fetcher
}

func TestIndexer_Run(t *testing.T) {
	files := map[string]string{
		"/test/repo/b.py":              "from a import add\n\nprint(add(1, 2))\n",
		"/test/repo/a.py":              "def add(a, b):\n    return a + b\n",
		"/test/repo/README.md":         "# readme",
		"/test/repo/image.png":         "binary data",
		"/test/repo/vendor/lib.py":     "def vendored():\n    pass\n",
		"/test/repo/web/app.js":        "function main() {\n  return 1;\n}\n",
		"/test/repo/web/app.min.js":    "function a(){}",
		"/test/repo/src/Main.java":     "class Main {}\n",
		"/test/repo/src/empty.py":      "\n\n",
		"/test/repo/.git/hooks/x.py":   "print('hook')\n",
		"/test/repo/node_modules/m.js": "module.exports = 1;\n",
	}
	ix, fetcher := newTestIndexer(files, &MockEmbedder{})

	res, err := ix.Run(context.Background(), "test/repo")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !fetcher.cleaned {
		t.Error("Expected fetch cleanup to run")
	}

	var paths []string
	for _, f := range res.Files {
		paths = append(paths, f.Path)
	}
	want := "a.py b.py src/Main.java src/empty.py web/app.js"
	if got := strings.Join(paths, " "); got != want {
		t.Errorf("Expected files %q, got %q", want, got)
	}

	if len(res.Chunks) != 4 {
		t.Fatalf("Expected 4 chunks (empty file has none), got %d", len(res.Chunks))
	}
	if res.Chunks[0].Path != "a.py" || res.Chunks[0].Symbol != "add" {
		t.Errorf("Expected first chunk to be add in a.py, got %s %s", res.Chunks[0].Path, res.Chunks[0].Symbol)
	}
	if res.Index.Len() != len(res.Chunks) {
		t.Errorf("Expected one vector per chunk, got %d for %d chunks", res.Index.Len(), len(res.Chunks))
	}
	if res.Index.Backend() != store.BackendBruteForce {
		t.Errorf("Expected brute-force backend, got %s", res.Index.Backend())
	}
}

func TestIndexer_RunErrors(t *testing.T) {
	files := map[string]string{"/test/repo/a.py": "def a():\n    pass\n"}

	t.Run("fetch failure is a CloneError", func(t *testing.T) {
		ix, fetcher := newTestIndexer(files, &MockEmbedder{})
		fetcher.FetchFunc = func(context.Context, string, string) (string, func(), error) {
			return "", nil, errors.New("repository not found")
		}
		_, err := ix.Run(context.Background(), "https://example.com/missing.git")
		if errs.KindOf(err) != errs.CloneError {
			t.Errorf("Expected CloneError, got %v", err)
		}
	})

	t.Run("embedding failure is an EmbeddingError", func(t *testing.T) {
		emb := &MockEmbedder{EmbedFunc: func(context.Context, []string) ([][]float32, error) {
			return nil, errors.New("quota exceeded")
		}}
		ix, fetcher := newTestIndexer(files, emb)
		_, err := ix.Run(context.Background(), "test/repo")
		if !errors.Is(err, errs.ErrEmbedding) {
			t.Errorf("Expected EmbeddingError, got %v", err)
		}
		if !fetcher.cleaned {
			t.Error("Expected cleanup after a failed run")
		}
	})

	t.Run("walk failure", func(t *testing.T) {
		ix, _ := newTestIndexer(files, &MockEmbedder{})
		ix.Walker = &MockFileSystemWalker{WalkError: errors.New("permission denied")}
		if _, err := ix.Run(context.Background(), "test/repo"); err == nil {
			t.Error("Expected walk error")
		}
	})
}

func TestIndexer_RunRef(t *testing.T) {
	files := map[string]string{"/test/repo/a.py": "def a():\n    pass\n"}
	tests := []struct {
		name       string
		configured string
		requested  string
		expected   string
	}{
		{"configured ref", "main", "", "main"},
		{"requested ref wins", "main", "v1.2.0", "v1.2.0"},
		{"remote default", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix, fetcher := newTestIndexer(files, &MockEmbedder{})
			ix.Options.Ref = tt.configured
			var got string
			fetcher.FetchFunc = func(_ context.Context, _ string, ref string) (string, func(), error) {
				got = ref
				return "/test/repo", func() {}, nil
			}
			if _, err := ix.RunRef(context.Background(), "test/repo", tt.requested); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected ref %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestIndexer_ScanOptions(t *testing.T) {
	files := map[string]string{
		"/test/repo/a.py":   "x = 1\n",
		"/test/repo/b.go":   "package b\n",
		"/test/repo/big.py": strings.Repeat("x", 2048),
		"/test/repo/bin.py": "abc\x00def",
		"/test/repo/bad.py": "unreadable",
	}
	ix, _ := newTestIndexer(files, &MockEmbedder{})
	ix.Options = Options{Extensions: []string{".py", ".GO"}, MaxFileBytes: 1024}
	ix.FileReader = &MockFileReader{ReadFileFunc: func(name string) ([]byte, error) {
		if strings.HasSuffix(name, "bad.py") {
			return nil, os.ErrPermission
		}
		return []byte(files[name]), nil
	}}

	got, err := ix.Scan(context.Background(), "/test/repo")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var paths []string
	for _, f := range got {
		paths = append(paths, f.Path+":"+f.Language)
	}
	if strings.Join(paths, " ") != "a.py:python b.go:go" {
		t.Errorf("Unexpected scan result %v", paths)
	}
}

func TestIndexer_ScanRealDirectory(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("pkg/z.py", "def z():\n    pass\n")
	write("pkg/a.py", "def a():\n    pass\n")
	write("node_modules/dep/index.js", "function dep() {}\n")
	write("lib/util.js", "const f = () => 1;\n")

	ix := New(&GitFetcher{}, chunker.New(chunker.Options{}), ai.NewStubClient(16), store.BruteForce{}, Options{})
	res, err := ix.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var paths []string
	for _, f := range res.Files {
		paths = append(paths, f.Path)
	}
	if strings.Join(paths, " ") != "lib/util.js pkg/a.py pkg/z.py" {
		t.Errorf("Unexpected files %v", paths)
	}
	if _, err := os.Stat(root); err != nil {
		t.Error("A local directory must not be removed after ingestion")
	}
}

func TestGitFetcher_Errors(t *testing.T) {
	f := &GitFetcher{}
	if _, _, err := f.Fetch(context.Background(), "  ", ""); errs.KindOf(err) != errs.CloneError {
		t.Errorf("Expected CloneError for empty repo, got %v", err)
	}
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	if _, _, err := f.Fetch(context.Background(), missing, "main"); errs.KindOf(err) != errs.CloneError {
		t.Errorf("Expected CloneError for unreachable repo, got %v", err)
	}
}

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"/src/main.py", false},
		{"/vendor/lib.py", true},
		{"/a/node_modules/x.js", true},
		{"/.git/config", true},
		{"/static/app.min.js", true},
		{"/img/logo.PNG", true},
		{"/Build/out.java", true},
		{"/builder/x.java", false},
	}
	for _, tt := range tests {
		if got := shouldSkip(tt.path); got != tt.expected {
			t.Errorf("shouldSkip(%q) = %v, want %v", tt.path, got, tt.expected)
		}
	}
}

func BenchmarkIndexer_ShouldSkip(b *testing.B) {
	for i := 0; i < b.N; i++ {
		shouldSkip("/src/components/widgets/form/input.js")
	}
}

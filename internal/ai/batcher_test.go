package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/seanblong/codenav/internal/errs"
)

// MockEmbedder records the batches it receives.
type MockEmbedder struct {
	mu        sync.Mutex
	batches   [][]string
	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), texts...))
	m.mu.Unlock()
	return m.EmbedFunc(ctx, texts)
}

func (m *MockEmbedder) Dim() int      { return 4 }
func (m *MockEmbedder) Model() string { return "mock" }

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text number %d", i)
	}
	return out
}

func TestBatcher_MatchesUnbatched(t *testing.T) {
	stub := NewStubClient(32)
	in := texts(37)

	want, err := stub.Embed(context.Background(), in)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for _, opts := range []BatchOptions{
		{MaxBatchSize: 1, Concurrency: 1},
		{MaxBatchSize: 5, Concurrency: 3},
		{MaxBatchSize: 100, MaxBatchChars: 40, Concurrency: 8},
		{},
	} {
		t.Run(fmt.Sprintf("%+v", opts), func(t *testing.T) {
			got, err := NewBatcher(stub, opts).Embed(context.Background(), in)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(got) != len(want) {
				t.Fatalf("Expected %d vectors, got %d", len(want), len(got))
			}
			for i := range want {
				if !equalVec(got[i], want[i]) {
					t.Fatalf("vector %d differs from the unbatched result", i)
				}
			}
		})
	}
}

func TestBatcher_Split(t *testing.T) {
	b := NewBatcher(NewStubClient(4), BatchOptions{MaxBatchSize: 3, MaxBatchChars: 10})
	batches := b.split([]string{"aaaa", "bbbb", "cc", "dddddddddddd", "e", "f", "g", "h"})

	var got []string
	for _, bt := range batches {
		got = append(got, fmt.Sprintf("%d:%s", bt.offset, strings.Join(bt.texts, ",")))
	}
	want := []string{"0:aaaa,bbbb,cc", "3:dddddddddddd", "4:e,f,g", "7:h"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("split = %v, want %v", got, want)
	}
}

func TestBatcher_FailureFailsWholeCall(t *testing.T) {
	m := &MockEmbedder{EmbedFunc: func(_ context.Context, texts []string) ([][]float32, error) {
		if strings.Contains(texts[0], "number 4") {
			return nil, errors.New("provider down")
		}
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{1, 0, 0, 0}
		}
		return out, nil
	}}

	got, err := NewBatcher(m, BatchOptions{MaxBatchSize: 2}).Embed(context.Background(), texts(10))
	if got != nil {
		t.Error("Expected no partial result")
	}
	if !errors.Is(err, errs.ErrEmbedding) {
		t.Errorf("Expected EmbeddingError, got %v", err)
	}
}

func TestBatcher_RejectsInconsistentDimensions(t *testing.T) {
	m := &MockEmbedder{EmbedFunc: func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, s := range texts {
			out[i] = make([]float32, 2+len(s)%2)
		}
		return out, nil
	}}

	_, err := NewBatcher(m, BatchOptions{}).Embed(context.Background(), []string{"ab", "abc"})
	if errs.KindOf(err) != errs.EmbeddingError {
		t.Errorf("Expected EmbeddingError, got %v", err)
	}
}

func TestBatcher_RejectsShortBatch(t *testing.T) {
	m := &MockEmbedder{EmbedFunc: func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}}
	_, err := NewBatcher(m, BatchOptions{}).Embed(context.Background(), []string{"a", "b"})
	if err == nil || !strings.Contains(err.Error(), "returned 1 vectors for 2 texts") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestBatcher_Empty(t *testing.T) {
	m := &MockEmbedder{}
	got, err := NewBatcher(m, BatchOptions{}).Embed(context.Background(), nil)
	if err != nil || got != nil {
		t.Errorf("Expected nil, nil, got %v, %v", got, err)
	}
	if len(m.batches) != 0 {
		t.Error("Expected no provider calls for empty input")
	}
}

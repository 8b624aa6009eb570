package testutil

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/xxxsen/medrag/internal/ai"
)

// FakeEmbedder returns fixed vectors for known texts, Fallback (when set) or
// a hash-derived vector for everything else. It counts how many texts
// reached it.
type FakeEmbedder struct {
	Model    string
	Vectors  map[string][]float32
	Fallback []float32
	Err      error

	mu    sync.Mutex
	calls int
	texts []string
}

func NewFakeEmbedder(vectors map[string][]float32) *FakeEmbedder {
	if vectors == nil {
		vectors = map[string][]float32{}
	}
	return &FakeEmbedder{Model: "fake-embed", Vectors: vectors}
}

func (f *FakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, texts...)
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if v, ok := f.Vectors[text]; ok {
			out = append(out, append([]float32(nil), v...))
			continue
		}
		if f.Fallback != nil {
			out = append(out, append([]float32(nil), f.Fallback...))
			continue
		}
		out = append(out, HashVector(text))
	}
	return out, nil
}

func (f *FakeEmbedder) ModelName() string {
	return f.Model
}

// Calls is the number of Embed invocations.
func (f *FakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Texts lists every text the embedder was asked for, in order.
func (f *FakeEmbedder) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// HashVector derives a stable 8 dimensional vector from text.
func HashVector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	out := make([]float32, 8)
	for i := range out {
		out[i] = float32(int(sum[i])-128) / 128
	}
	return out
}

var _ ai.IEmbedder = (*FakeEmbedder)(nil)

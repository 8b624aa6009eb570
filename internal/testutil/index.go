package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/pkg/vecmath"
)

// FakeIndex is an exact in-memory vector index.
type FakeIndex struct {
	Docs      []model.Document
	SearchErr error
	FetchErr  error

	mu             sync.Mutex
	searchCalls    int
	fetchCalls     int
	lastCandidates int
}

func (f *FakeIndex) Search(ctx context.Context, vector []float32, numCandidates, limit int) ([]model.Document, error) {
	f.mu.Lock()
	f.searchCalls++
	f.lastCandidates = numCandidates
	f.mu.Unlock()
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	out := make([]model.Document, 0, len(f.Docs))
	for _, doc := range f.Docs {
		doc.Score = vecmath.Cosine(vector, doc.Embedding)
		doc.Embedding = nil
		out = append(out, doc)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeIndex) FetchByMetadata(ctx context.Context, filter model.MetadataFilter, limit int) ([]model.Document, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	var out []model.Document
	for _, doc := range f.Docs {
		if len(out) >= limit {
			break
		}
		if filter.Match(doc) {
			doc.Embedding = append([]float32(nil), doc.Embedding...)
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *FakeIndex) Count(ctx context.Context) (int64, error) {
	if f.SearchErr != nil {
		return 0, f.SearchErr
	}
	return int64(len(f.Docs)), nil
}

func (f *FakeIndex) SearchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchCalls
}

func (f *FakeIndex) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func (f *FakeIndex) LastCandidates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCandidates
}

package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/medrag/internal/ai"
	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/pkg/vecmath"
	"github.com/xxxsen/medrag/internal/vectorindex"
)

const (
	DefaultFAQSource           = "FAQ_END_USER.md"
	DefaultCandidateMultiplier = 10
	DefaultMinCandidates       = 500
	DefaultFAQScanLimit        = 1000
)

type RetrieverOption func(*Retriever)

func WithFAQSource(source string) RetrieverOption {
	return func(r *Retriever) {
		if source != "" {
			r.faqSource = source
		}
	}
}

func WithCandidates(multiplier, minimum int) RetrieverOption {
	return func(r *Retriever) {
		if multiplier > 0 {
			r.candidateMultiplier = multiplier
		}
		if minimum > 0 {
			r.minCandidates = minimum
		}
	}
}

func WithFAQScanLimit(n int) RetrieverOption {
	return func(r *Retriever) {
		if n > 0 {
			r.faqScanLimit = n
		}
	}
}

// Retriever turns a query into ranked documents using the vector index, with
// a local cosine scan over FAQ documents as a fallback.
type Retriever struct {
	embedder            ai.IEmbedder
	index               vectorindex.VectorIndex
	faqSource           string
	candidateMultiplier int
	minCandidates       int
	faqScanLimit        int
}

func NewRetriever(embedder ai.IEmbedder, index vectorindex.VectorIndex, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder:            embedder,
		index:               index,
		faqSource:           DefaultFAQSource,
		candidateMultiplier: DefaultCandidateMultiplier,
		minCandidates:       DefaultMinCandidates,
		faqScanLimit:        DefaultFAQScanLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retriever) FAQSource() string {
	return r.faqSource
}

// NumCandidates is the approximate-search budget used for a top-k query.
func (r *Retriever) NumCandidates(k int) int {
	n := r.candidateMultiplier * k
	if n < r.minCandidates {
		n = r.minCandidates
	}
	return n
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := r.embedder.Embed(ctx, []string{strings.TrimSpace(query)})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ai.ErrUnavailable)
	}
	return vecs[0], nil
}

// Search is Retrieve with the upstream error exposed.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]model.Document, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	vec, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	docs, err := r.index.Search(ctx, vec, r.NumCandidates(k), k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	for i := range docs {
		docs[i].Embedding = nil
	}
	sortByScore(docs)
	if len(docs) > k {
		docs = docs[:k]
	}
	return docs, nil
}

// Retrieve returns up to k documents by descending score. Upstream failures
// are logged and yield an empty result.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) []model.Document {
	docs, err := r.Search(ctx, query, k)
	if err != nil {
		logutil.GetLogger(ctx).Warn("retrieve documents failed", zap.Error(err))
		return nil
	}
	logutil.GetLogger(ctx).Debug("documents retrieved", zap.Int("count", len(docs)), zap.Int("k", k))
	return docs
}

// RetrieveFAQ scans documents tagged as faq, or coming from the faq source,
// and ranks them by cosine similarity against the query locally.
func (r *Retriever) RetrieveFAQ(ctx context.Context, query string, k int) []model.Document {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil
	}
	logger := logutil.GetLogger(ctx)
	vec, err := r.embedQuery(ctx, query)
	if err != nil {
		logger.Warn("embed query for faq fallback failed", zap.Error(err))
		return nil
	}
	filter := model.MetadataFilter{Types: []string{model.DocTypeFAQ}, Sources: []string{r.faqSource}}
	candidates, err := r.index.FetchByMetadata(ctx, filter, r.faqScanLimit)
	if err != nil {
		logger.Warn("fetch faq documents failed", zap.Error(err))
		return nil
	}
	scored := make([]model.Document, 0, len(candidates))
	for _, doc := range candidates {
		if len(doc.Embedding) == 0 {
			continue
		}
		doc.Score = vecmath.Cosine(vec, doc.Embedding)
		doc.Embedding = nil
		scored = append(scored, doc)
	}
	sortByScore(scored)
	if len(scored) > k {
		scored = scored[:k]
	}
	logger.Debug("faq fallback", zap.Int("candidates", len(candidates)), zap.Int("returned", len(scored)))
	return scored
}

// DocumentCount reports the index size, or 0 when the index is unreachable.
func (r *Retriever) DocumentCount(ctx context.Context) int64 {
	n, err := r.index.Count(ctx)
	if err != nil {
		logutil.GetLogger(ctx).Warn("count documents failed", zap.Error(err))
		return 0
	}
	return n
}

func sortByScore(docs []model.Document) {
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
}

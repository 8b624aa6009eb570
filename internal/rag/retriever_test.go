package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/medrag/internal/ai"
	"github.com/xxxsen/medrag/internal/embedcache"
	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/testutil"
)

const testQuery = "paracetamol giá bao nhiêu"

func seededIndex() *testutil.FakeIndex {
	return &testutil.FakeIndex{Docs: []model.Document{
		{ID: "p1", ProductID: "SP01", Text: "Paracetamol 500mg giảm đau", Type: model.DocTypeProduct, Embedding: []float32{1, 0.1, 0}},
		{ID: "p2", ProductID: "SP01", Text: "Giá: 25.000₫/hộp", Type: model.DocTypePrice, Embedding: []float32{1, 0.5, 0}},
		{ID: "f1", Title: "Đổi trả", Text: "Đổi trả trong 7 ngày", Source: DefaultFAQSource, Embedding: []float32{0, 0, 1}},
		{ID: "f2", Title: "Giao hàng", Text: "Giao hàng toàn quốc", Type: model.DocTypeFAQ, Embedding: []float32{0, 1, 1}},
		{ID: "f3", Title: "Bảo hành", Text: "Chưa có embedding", Type: model.DocTypeFAQ},
	}}
}

func seededEmbedder() *testutil.FakeEmbedder {
	return testutil.NewFakeEmbedder(map[string][]float32{
		testQuery:      {1, 0, 0},
		"đổi trả hàng": {0, 0.2, 1},
	})
}

func TestRetrieve_OrdersByScoreAndLimits(t *testing.T) {
	r := NewRetriever(seededEmbedder(), seededIndex())
	docs := r.Retrieve(context.Background(), testQuery, 2)
	require.Len(t, docs, 2)
	require.Equal(t, "p1", docs[0].ID)
	require.Equal(t, "p2", docs[1].ID)
	require.GreaterOrEqual(t, docs[0].Score, docs[1].Score)
	for _, d := range docs {
		require.Nil(t, d.Embedding)
	}
}

func TestRetrieve_TrimsQueryBeforeEmbedding(t *testing.T) {
	emb := seededEmbedder()
	r := NewRetriever(emb, seededIndex())
	docs := r.Retrieve(context.Background(), "  "+testQuery+"\n", 1)
	require.Len(t, docs, 1)
	require.Equal(t, []string{testQuery}, emb.Texts())
}

func TestRetrieve_CandidateBudget(t *testing.T) {
	idx := seededIndex()
	r := NewRetriever(seededEmbedder(), idx)

	r.Retrieve(context.Background(), testQuery, 5)
	require.Equal(t, 500, idx.LastCandidates())

	r.Retrieve(context.Background(), testQuery, 80)
	require.Equal(t, 800, idx.LastCandidates())

	for _, k := range []int{1, 5, 50, 200} {
		require.GreaterOrEqual(t, r.NumCandidates(k), 10*k)
	}

	custom := NewRetriever(seededEmbedder(), idx, WithCandidates(20, 100))
	require.Equal(t, 100, custom.NumCandidates(2))
	require.Equal(t, 200, custom.NumCandidates(10))
}

func TestRetrieve_FailuresYieldEmpty(t *testing.T) {
	emb := seededEmbedder()
	emb.Err = errors.New("quota exceeded")
	r := NewRetriever(emb, seededIndex())
	require.Empty(t, r.Retrieve(context.Background(), testQuery, 3))
	_, err := r.Search(context.Background(), testQuery, 3)
	require.Error(t, err)

	idx := seededIndex()
	idx.SearchErr = errors.New("connection refused")
	r = NewRetriever(seededEmbedder(), idx)
	require.Empty(t, r.Retrieve(context.Background(), testQuery, 3))
	_, err = r.Search(context.Background(), testQuery, 3)
	require.ErrorIs(t, err, idx.SearchErr)
}

func TestRetrieve_EmptyVectorIsUnavailable(t *testing.T) {
	emb := testutil.NewFakeEmbedder(map[string][]float32{testQuery: {}})
	r := NewRetriever(emb, seededIndex())
	_, err := r.Search(context.Background(), testQuery, 3)
	require.ErrorIs(t, err, ai.ErrUnavailable)
}

func TestRetrieve_BlankQueryOrZeroK(t *testing.T) {
	emb := seededEmbedder()
	idx := seededIndex()
	r := NewRetriever(emb, idx)
	require.Empty(t, r.Retrieve(context.Background(), "   ", 3))
	require.Empty(t, r.Retrieve(context.Background(), testQuery, 0))
	require.Zero(t, emb.Calls())
	require.Zero(t, idx.SearchCalls())
}

func TestRetrieve_CachedQueryIsEmbeddedOnce(t *testing.T) {
	emb := seededEmbedder()
	r := NewRetriever(embedcache.WrapLruCacheToEmbedder(emb, 8), seededIndex())
	first := r.Retrieve(context.Background(), testQuery, 2)
	second := r.Retrieve(context.Background(), testQuery, 2)
	require.Equal(t, first, second)
	require.Equal(t, 1, emb.Calls())
}

func TestRetrieveFAQ_RanksFAQDocsLocally(t *testing.T) {
	idx := seededIndex()
	r := NewRetriever(seededEmbedder(), idx)
	docs := r.RetrieveFAQ(context.Background(), "đổi trả hàng", 5)
	require.Len(t, docs, 2)
	require.Equal(t, "f1", docs[0].ID)
	require.Equal(t, "f2", docs[1].ID)
	require.Greater(t, docs[0].Score, docs[1].Score)
	require.Nil(t, docs[0].Embedding)
	require.Zero(t, idx.SearchCalls())
	require.Equal(t, 1, idx.FetchCalls())

	require.Len(t, r.RetrieveFAQ(context.Background(), "đổi trả hàng", 1), 1)
}

func TestRetrieveFAQ_CustomSource(t *testing.T) {
	idx := &testutil.FakeIndex{Docs: []model.Document{
		{ID: "a", Text: "x", Source: "HELP.md", Embedding: []float32{1, 0}},
		{ID: "b", Text: "y", Source: DefaultFAQSource, Embedding: []float32{1, 0}},
	}}
	emb := testutil.NewFakeEmbedder(map[string][]float32{"q": {1, 0}})
	r := NewRetriever(emb, idx, WithFAQSource("HELP.md"))
	require.Equal(t, "HELP.md", r.FAQSource())
	docs := r.RetrieveFAQ(context.Background(), "q", 5)
	require.Len(t, docs, 1)
	require.Equal(t, "a", docs[0].ID)
}

func TestRetrieveFAQ_FetchFailureYieldsEmpty(t *testing.T) {
	idx := seededIndex()
	idx.FetchErr = errors.New("timeout")
	r := NewRetriever(seededEmbedder(), idx)
	require.Empty(t, r.RetrieveFAQ(context.Background(), "đổi trả hàng", 3))
}

func TestDocumentCount(t *testing.T) {
	idx := seededIndex()
	r := NewRetriever(seededEmbedder(), idx)
	require.Equal(t, int64(5), r.DocumentCount(context.Background()))
	idx.SearchErr = errors.New("down")
	require.Zero(t, r.DocumentCount(context.Background()))
}

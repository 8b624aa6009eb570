package rag

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/medrag/internal/model"
)

const (
	DefaultTopK       = 5
	highScoreCutoff   = 0.2
	defaultReportTopK = 5
)

type ContextRequest struct {
	Question string       `json:"question"`
	Intent   model.Intent `json:"intent"`
}

type PipelineConfig struct {
	TopK      int
	CharLimit int
	MaxDocs   int
}

// Pipeline chains retrieval and context building for one question.
type Pipeline struct {
	retriever *Retriever
	builder   *ContextBuilder
	cfg       PipelineConfig
}

func NewPipeline(retriever *Retriever, builder *ContextBuilder, cfg PipelineConfig) *Pipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.CharLimit <= 0 {
		cfg.CharLimit = DefaultCharLimit
	}
	if cfg.MaxDocs <= 0 {
		cfg.MaxDocs = DefaultMaxDocs
	}
	return &Pipeline{retriever: retriever, builder: builder, cfg: cfg}
}

func (p *Pipeline) Retriever() *Retriever {
	return p.retriever
}

func (p *Pipeline) Builder() *ContextBuilder {
	return p.builder
}

func (p *Pipeline) RetrieveAndBuildContext(ctx context.Context, req ContextRequest) string {
	return p.Gather(ctx, req).Context
}

// Evidence is the context block for one question. Prices is filled only for
// price questions and summarises the prices found in the retrieved documents.
type Evidence struct {
	Context string
	Prices  string
}

func (p *Pipeline) Gather(ctx context.Context, req ContextRequest) Evidence {
	if strings.TrimSpace(req.Question) == "" {
		return Evidence{Context: EmptyQueryMessage}
	}
	intent := req.Intent
	if !intent.Valid() {
		intent = model.IntentGeneral
	}
	logutil.GetLogger(ctx).Info("retrieving context", zap.String("intent", string(intent)))
	docs := p.retriever.Retrieve(ctx, req.Question, p.cfg.TopK)
	ev := Evidence{Context: p.builder.BuildContext(ctx, docs, intent, req.Question, p.cfg.CharLimit, p.cfg.MaxDocs)}
	if intent == model.IntentPrice {
		ev.Prices = p.builder.ExtractPriceInfo(docs)
	}
	return ev
}

type RetrievalReport struct {
	Query         string           `json:"query"`
	TotalDocs     int              `json:"total_docs"`
	HighScoreDocs int              `json:"high_score_docs"`
	AvgScore      float64          `json:"avg_score"`
	MaxScore      float64          `json:"max_score"`
	MinScore      float64          `json:"min_score"`
	Docs          []model.Document `json:"docs"`
	ProductIDs    []string         `json:"product_ids"`
	Context       string           `json:"context"`
}

// TestRetrieval runs retrieval for query and summarises the scores. Unlike
// RetrieveAndBuildContext it surfaces upstream errors.
func (p *Pipeline) TestRetrieval(ctx context.Context, query string, k int) (*RetrievalReport, error) {
	if k <= 0 {
		k = defaultReportTopK
	}
	docs, err := p.retriever.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	report := &RetrievalReport{
		Query:      query,
		TotalDocs:  len(docs),
		Docs:       docs,
		ProductIDs: make([]string, 0, len(docs)),
		Context:    p.builder.BuildContext(ctx, docs, model.IntentGeneral, query, p.cfg.CharLimit, p.cfg.MaxDocs),
	}
	if report.Docs == nil {
		report.Docs = []model.Document{}
	}
	var sum float64
	for i, d := range docs {
		sum += d.Score
		if d.Score >= highScoreCutoff {
			report.HighScoreDocs++
		}
		if i == 0 || d.Score > report.MaxScore {
			report.MaxScore = d.Score
		}
		if i == 0 || d.Score < report.MinScore {
			report.MinScore = d.Score
		}
		report.ProductIDs = append(report.ProductIDs, d.ProductID)
	}
	if len(docs) > 0 {
		report.AvgScore = sum / float64(len(docs))
	}
	return report, nil
}

func (p *Pipeline) DocumentCount(ctx context.Context) int64 {
	return p.retriever.DocumentCount(ctx)
}

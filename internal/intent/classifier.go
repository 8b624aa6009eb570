package intent

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/medrag/internal/ai"
	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/patterns"
)

const (
	DefaultSemanticThreshold = 0.45
	DefaultMaxGreetingChars  = 40
	minSemanticTokens        = 3
)

// Stage names which tier of the classifier produced a result.
type Stage string

const (
	StageKeyword  Stage = "keyword"
	StageGreeting Stage = "greeting"
	StageSemantic Stage = "semantic"
	StageDefault  Stage = "default"
)

type Result struct {
	Intent model.Intent `json:"intent"`
	Stage  Stage        `json:"stage"`
	Score  float64      `json:"score"`
}

type Option func(*Classifier)

func WithSemanticThreshold(v float64) Option {
	return func(c *Classifier) {
		if v > 0 {
			c.threshold = v
		}
	}
}

func WithMaxGreetingChars(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.maxGreetingChars = n
		}
	}
}

// Classifier is the tiered intent detector: keyword families first, then
// greetings, then embedding similarity against the corpus.
type Classifier struct {
	set              *patterns.Set
	corpus           *Corpus
	embedder         ai.IEmbedder
	threshold        float64
	maxGreetingChars int
}

// NewClassifier wires a classifier. embedder is used for queries and should
// be the cached embedder shared with the corpus.
func NewClassifier(set *patterns.Set, corpus *Corpus, embedder ai.IEmbedder, opts ...Option) *Classifier {
	c := &Classifier{
		set:              set,
		corpus:           corpus,
		embedder:         embedder,
		threshold:        DefaultSemanticThreshold,
		maxGreetingChars: DefaultMaxGreetingChars,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Classifier) DetectIntent(ctx context.Context, query string) model.Intent {
	return c.Classify(ctx, query).Intent
}

// Classify never fails; upstream errors degrade to general.
func (c *Classifier) Classify(ctx context.Context, query string) Result {
	lower := patterns.Normalize(query)
	if it, ok := c.keywordIntent(lower); ok {
		return Result{Intent: it, Stage: StageKeyword, Score: 1}
	}
	if c.set.Greeting.Match(lower) &&
		utf8.RuneCountInString(lower) <= c.maxGreetingChars &&
		!c.set.AskMarkers.Match(lower) {
		return Result{Intent: model.IntentGreeting, Stage: StageGreeting, Score: 1}
	}
	it, score := c.semanticIntent(ctx, query, lower)
	if score >= c.threshold {
		return Result{Intent: it, Stage: StageSemantic, Score: score}
	}
	return Result{Intent: model.IntentGeneral, Stage: StageDefault, Score: score}
}

func (c *Classifier) keywordIntent(lower string) (model.Intent, bool) {
	hasPrice := c.set.Price.Match(lower)
	hasProduct := c.set.Product.Match(lower)
	hasMedical := c.set.Medical.Match(lower)
	hasWeb := c.set.Web.Match(lower)
	hasFAQ := c.set.FAQ.Match(lower)

	switch {
	case hasWeb && !hasMedical:
		return model.IntentWeb, true
	case hasPrice && (hasProduct || hasMedical):
		return model.IntentPrice, true
	case hasProduct:
		return model.IntentProduct, true
	case hasPrice:
		return model.IntentPrice, true
	case hasMedical:
		return model.IntentMedical, true
	case hasFAQ:
		return model.IntentFAQ, true
	}
	return "", false
}

func (c *Classifier) semanticIntent(ctx context.Context, query, lower string) (model.Intent, float64) {
	if c.set.TrivialGreeting.Match(lower) || len(strings.Fields(lower)) < minSemanticTokens {
		return model.IntentGeneral, 0
	}
	if c.corpus == nil || c.embedder == nil {
		return model.IntentGeneral, 0
	}
	logger := logutil.GetLogger(ctx)
	vecs, err := c.embedder.Embed(ctx, []string{strings.TrimSpace(query)})
	if err != nil || len(vecs) == 0 {
		logger.Warn("embed query for intent failed", zap.Error(err))
		return model.IntentGeneral, 0
	}
	it, score, err := c.corpus.Best(ctx, vecs[0])
	if err != nil {
		logger.Warn("intent corpus unavailable", zap.Error(err))
		return model.IntentGeneral, 0
	}
	logger.Debug("semantic intent", zap.String("intent", string(it)), zap.Float64("score", score))
	return it, score
}
